package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling. An error from BeforeHandle skips the
// handler and goes through the error path (OnError, DLQ, commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError classifies a failure raised by a hook, e.g. ERR_PANIC.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookFuncs adapts plain functions; nil fields are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, km, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, data, err)
	}
}

// HookChain runs BeforeHandle in order and AfterHandle in reverse. A panic
// in any hook is turned into an ERR_PANIC error or swallowed.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	filtered := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return &HookChain{hooks: filtered}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range c.hooks {
		nctx, nmsg, ndata, err := safeBefore(h, ctx, topic, km, data)
		if err != nil {
			c.OnError(ctx, topic, km, data, err)
			return ctx, km, data, err
		}
		ctx, km, data = nctx, nmsg, ndata
	}
	return ctx, km, data, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		safeAfter(c.hooks[i], ctx, topic, km, data, err)
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for _, h := range c.hooks {
		safeOnError(h, ctx, topic, km, data, err)
	}
}

type ctxKey string

const (
	CtxStartTime ctxKey = "kafka_hook_start_time"
	CtxTraceID   ctxKey = "kafka_hook_trace_id"
)

func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, CtxStartTime, t)
}

// StartTime returns the time set by WithStartTime.
func StartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(CtxStartTime).(time.Time)
	return t, ok
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, CtxTraceID, traceID)
}

func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(CtxTraceID).(string)
	return s
}

// ExtractTraceID reads the trace_id header.
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte) (nctx context.Context, nmsg kafka.Message, ndata []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, topic, km, data)
}

func safeAfter(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	defer func() { _ = recover() }()
	h.AfterHandle(ctx, topic, km, data, err)
}

func safeOnError(h ConsumerHook, ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	defer func() { _ = recover() }()
	h.OnError(ctx, topic, km, data, err)
}
