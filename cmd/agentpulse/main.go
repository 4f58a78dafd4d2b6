// =============================================================================
// AgentPulse CLI entry point
// =============================================================================
// Operator tooling around the monitoring pipeline.
//
// Usage:
//
//	agentpulse detect                          # report detectable frameworks
//	agentpulse test-connection                 # verify collector credentials
//	agentpulse run                             # monitor stdin JSON events
//	agentpulse run --config config.yaml        # with a config file
//	agentpulse version                         # show version info
// =============================================================================

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/adapter"
	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/detect"
	"github.com/agentpulse/agentpulse/internal/telemetry"
	"github.com/agentpulse/agentpulse/monitor"
	"github.com/agentpulse/agentpulse/transport"
	"github.com/agentpulse/agentpulse/types"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "detect":
		runDetect(os.Args[2:])
	case "test-connection":
		runTestConnection(os.Args[2:])
	case "run":
		runMonitor(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// detect command
// =============================================================================

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	fs.Parse(args)

	detector := detect.NewDetector(zap.NewNop())
	candidates := detector.Detect()
	if len(candidates) == 0 {
		fmt.Println("No agent framework detected; the manual adapter would be used.")
		return
	}
	for i, c := range candidates {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("%s %-14s %s %s\n", marker, c.Framework, c.Module, c.Version)
	}
}

// =============================================================================
// test-connection command
// =============================================================================

func runTestConnection(args []string) {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	client := transport.NewClient(cfg.CollectorURL, cfg.APIKey, cfg.Transport, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := client.SendHeartbeat(ctx, types.Heartbeat{
		SessionID: "connection-test",
		Status:    types.StatusStarting,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection test failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: collector %s accepted credentials\n", cfg.CollectorURL)
}

// =============================================================================
// run command
// =============================================================================

// stdinEvent is one JSON line fed to `agentpulse run`.
type stdinEvent struct {
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields"`
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AgentPulse",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	m, err := monitor.New(cfg, monitor.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create monitor", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := m.Start(ctx)
	if err != nil {
		logger.Fatal("Failed to start monitoring", zap.Error(err))
	}
	logger.Info("Session started", zap.String("session_id", session.ID))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

loop:
	for {
		select {
		case <-sig:
			logger.Info("Signal received, shutting down")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if line == "" {
				continue
			}
			var ev stdinEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				logger.Warn("skipping malformed event line", zap.Error(err))
				continue
			}
			if ev.Kind == "" {
				ev.Kind = adapter.KindStepStart
			}
			m.LogEvent(ev.Kind, ev.Name, ev.Fields)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := m.Stop(stopCtx); err != nil {
		logger.Error("Stop failed", zap.Error(err))
	}
	if err := otelProviders.Shutdown(stopCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	logger.Info("AgentPulse stopped")
}

// =============================================================================
// helpers
// =============================================================================

func loadConfig(configPath string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
			zcfg.Level = level
		}
	}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printVersion() {
	fmt.Printf("AgentPulse %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentPulse - telemetry pipeline for AI agent processes

Usage:
  agentpulse <command> [flags]

Commands:
  detect           Report which agent frameworks are detectable here
  test-connection  Verify collector URL and credentials
  run              Monitor this process, reading JSON events from stdin
  version          Show version information
  help             Show this help

Flags:
  --config <path>  Path to a YAML config file (run, test-connection)

Environment:
  AGENTPULSE_API_KEY         Collector API key
  AGENTPULSE_COLLECTOR_URL   Collector base URL`)
}
