package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDispatch(tag string, calls *[]string) Dispatch {
	return func(_ context.Context, name string, args map[string]any) (map[string]any, error) {
		*calls = append(*calls, tag+":"+name)
		return args, nil
	}
}

func TestPoint_InvokePassesThrough(t *testing.T) {
	var calls []string
	p := NewPoint(echoDispatch("orig", &calls))

	out, err := p.Invoke(context.Background(), "step", map[string]any{"k": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": 1}, out)
	assert.Equal(t, []string{"orig:step"}, calls)
}

func TestPoint_WrapAndRestoreRoundTrip(t *testing.T) {
	var calls []string
	p := NewPoint(echoDispatch("orig", &calls))

	restore := p.Wrap(func(next Dispatch) Dispatch {
		return func(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
			calls = append(calls, "wrapped:"+name)
			return next(ctx, name, args)
		}
	})

	_, err := p.Invoke(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"wrapped:a", "orig:a"}, calls)

	// Restoring twice must leave the dispatch path identical to its
	// pre-wrap state.
	restore()
	restore()

	calls = nil
	_, err = p.Invoke(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"orig:b"}, calls)
}

func TestPoint_NestedWrapsUnwindInReverse(t *testing.T) {
	var calls []string
	p := NewPoint(echoDispatch("orig", &calls))

	tagged := func(tag string) Middleware {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
				calls = append(calls, tag)
				return next(ctx, name, args)
			}
		}
	}

	r1 := p.Wrap(tagged("outer"))
	r2 := p.Wrap(tagged("inner"))

	_, _ = p.Invoke(context.Background(), "x", nil)
	assert.Equal(t, []string{"inner", "outer", "orig:x"}, calls)

	r2()
	r1()

	calls = nil
	_, _ = p.Invoke(context.Background(), "y", nil)
	assert.Equal(t, []string{"orig:y"}, calls)
}

func TestNewPoint_NilDispatch(t *testing.T) {
	p := NewPoint(nil)
	out, err := p.Invoke(context.Background(), "noop", map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "b"}, out)
}
