package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"

	"imgworker/internal/logging"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors broadcast events onto a Kafka topic. Targeted events are
// not forwarded.
type KafkaSink struct {
	writer   messageWriter
	strategy retry.Strategy
	logger   *slog.Logger
	events   chan Event
	dropped  atomic.Int64
	once     sync.Once
	done     chan struct{}
}

// NewKafkaSink connects a sink to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string, s retry.Strategy, logger *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return newKafkaSink(w, s, 64, logger)
}

func newKafkaSink(w messageWriter, s retry.Strategy, buffer int, logger *slog.Logger) *KafkaSink {
	if s.Attempts < 1 {
		s.Attempts = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &KafkaSink{
		writer:   w,
		strategy: s,
		logger:   logging.NewComponentLogger(logger, "events"),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
	}
}

// Notify queues evt for delivery without blocking. Events are dropped when
// the buffer is full.
func (k *KafkaSink) Notify(evt Event) {
	if evt.Target != "" {
		return
	}
	select {
	case <-k.done:
		return
	default:
	}
	select {
	case k.events <- evt:
	default:
		k.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (k *KafkaSink) Dropped() int64 {
	return k.dropped.Load()
}

// Run delivers queued events until ctx ends or Close is called.
func (k *KafkaSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-k.done:
			return
		case evt := <-k.events:
			if err := k.deliver(ctx, evt); err != nil {
				k.logger.Warn("event delivery failed",
					logging.String("command", evt.Command),
					logging.Error(err),
					logging.String(logging.FieldEventType, "event_delivery_failed"),
					logging.String(logging.FieldErrorHint, "check the events.brokers setting and broker health"),
					logging.String(logging.FieldImpact, "external observers miss this event"),
				)
			}
		}
	}
}

func (k *KafkaSink) deliver(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{Key: []byte(evt.Command), Value: data}
	if err := retry.Do(func() error {
		return k.writer.WriteMessages(ctx, msg)
	}, k.strategy); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close stops delivery and closes the underlying writer.
func (k *KafkaSink) Close() error {
	var err error
	k.once.Do(func() {
		close(k.done)
		err = k.writer.Close()
	})
	return err
}
