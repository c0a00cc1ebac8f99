package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before-"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after-"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "xab", string(data))
	chain.AfterHandle(ctx, "t", km, data, nil)

	assert.Equal(t, []string{"before-a", "before-b", "after-b", "after-a"}, order)
}

func TestHookChainPanicBecomesError(t *testing.T) {
	var notified error
	chain := NewHookChain(
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { notified = err }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
	)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, notified)

	assert.NotPanics(t, func() {
		NewHookChain(HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { panic("x") }}).
			AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	})
}

func TestTraceAndStartTime(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx := WithTraceID(context.Background(), ExtractTraceID(msg))
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Equal(t, "", TraceID(WithTraceID(context.Background(), "")))

	now := time.Unix(100, 0)
	got, ok := StartTime(WithStartTime(ctx, now))
	require.True(t, ok)
	assert.Equal(t, now, got)
}
