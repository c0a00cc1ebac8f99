package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/middleware"
	pkgkafka "CopyFabric/pkg/kafka"
	"CopyFabric/pkg/logger"
)

// KafkaSignalsHandler feeds signals consumed from Kafka through the same
// gate and dispatcher as the pub/sub path. Partition ordering keeps a
// master's signals in order.
type KafkaSignalsHandler struct {
	topic      string
	gate       *middleware.SignalGate
	dispatcher SignalDispatcher
}

func NewKafkaSignalsHandler(topic string, gate *middleware.SignalGate, dispatcher SignalDispatcher) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, gate: gate, dispatcher: dispatcher}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// Handle returns an error only for failures worth retrying; dropped signals
// are acknowledged.
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	sig, err := h.gate.Admit(ctx, b)
	if err != nil {
		if errors.Is(err, middleware.ErrMalformed) || errors.Is(err, middleware.ErrStale) || errors.Is(err, middleware.ErrAlreadyClosed) {
			return nil
		}
		return err
	}
	_, err = h.dispatcher.Dispatch(ctx, sig)
	return err
}

// NewSignalHook times each consumed signal and logs handler failures with
// the producer's trace id.
func NewSignalHook(m drepo.Metrics, l *logger.Logger) pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			return pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km)), km, data, nil
		},
		After: func(ctx context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			if start, ok := pkgkafka.StartTime(ctx); ok {
				m.RecordLatency("kafka_signal_seconds", time.Since(start).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			m.RecordError("kafka_signal")
			l.Warn("kafka signal handling failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.String("trace_id", pkgkafka.TraceID(ctx)),
				logger.Error(err))
		},
	}
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
