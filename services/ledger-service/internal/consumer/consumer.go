package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/salonpos/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox dedupes by event id. Record runs only after the handler succeeded.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

// Reader is the subset of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer delivers each message at least once: the offset is committed only after
// the handler and the inbox write both succeeded. A failing message is retried in
// place, which holds back its partition until it goes through.
type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	backoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	Backoff time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, logger, inbox, cfg.Backoff, handler)
}

func NewWithReader(reader Reader, logger *slog.Logger, inbox Inbox, backoff time.Duration, handler Handler) *Consumer {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{reader: reader, logger: logger, inbox: inbox, handler: handler, backoff: backoff}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		for attempt := 1; ; attempt++ {
			err := c.process(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("event processing failed", "err", err, "attempt", attempt,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			if !sleep(ctx, c.backoff) {
				return
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	seen, err := c.inbox.Seen(ctxSpan, meta.EventID)
	if err != nil {
		return traceErr(span, err)
	}
	if seen {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return traceErr(span, c.reader.CommitMessages(ctx, msg))
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		return traceErr(span, err)
	}
	if _, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType); err != nil {
		return traceErr(span, err)
	}
	return traceErr(span, c.reader.CommitMessages(ctx, msg))
}

func traceErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
