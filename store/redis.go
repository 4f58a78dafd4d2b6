package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/types"
)

// RedisSpill keeps spilled events in a Redis list per session, oldest at
// the head, expiring after the configured TTL so an abandoned session does
// not hold memory forever.
type RedisSpill struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSpill connects a spill buffer from configuration.
func NewRedisSpill(cfg config.SpillConfig, logger *zap.Logger) *RedisSpill {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentpulse:spill:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSpill{
		rdb:       rdb,
		keyPrefix: prefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "spill")),
	}
}

func (s *RedisSpill) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Save appends the events to the session's list in order.
func (s *RedisSpill) Save(ctx context.Context, sessionID string, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", ev.SequenceNumber, err)
		}
		values = append(values, data)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.key(sessionID), values...)
	pipe.Expire(ctx, s.key(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	s.logger.Info("events spilled",
		zap.String("session_id", sessionID),
		zap.Int("events", len(events)))
	return nil
}

// Load drains the session's list, returning events oldest first.
func (s *RedisSpill) Load(ctx context.Context, sessionID string) ([]types.Event, error) {
	key := s.key(sessionID)

	pipe := s.rdb.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	raw := items.Val()
	events := make([]types.Event, 0, len(raw))
	for _, item := range raw {
		var ev types.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			// One corrupt entry must not strand the rest.
			s.logger.Warn("dropping corrupt spilled event", zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close releases the Redis connection.
func (s *RedisSpill) Close() error {
	return s.rdb.Close()
}
