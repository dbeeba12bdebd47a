package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-insights-service/internal/models"
	"speech-insights-service/internal/observability/logging"
	"speech-insights-service/internal/observability/metrics"
	"speech-insights-service/internal/schema"
)

// Notification outcomes, used as the metrics result label.
const (
	ResultProcessed = "processed"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
	ResultIgnored   = "ignored"
)

// BlobHandler processes one notification. Returned errors are logged and
// counted; they never stop the consumer.
type BlobHandler func(ctx context.Context, ev models.BlobCreated) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Workers int
}

// Consumer reads blob-created notifications and dispatches them to a bounded
// pool of workers.
type Consumer struct {
	reader    messageReader
	validator *schema.Validator
	handler   BlobHandler
	workers   int
	metrics   *metrics.Metrics
	log       zerolog.Logger

	offsets  *offsetTracker
	commitMu sync.Mutex
}

// NewConsumer creates a consumer group reader for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, v *schema.Validator, h BlobHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		},
	})
	return newConsumer(reader, cfg.Workers, v, h)
}

func newConsumer(r messageReader, workers int, v *schema.Validator, h BlobHandler) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		reader:    r,
		validator: v,
		handler:   h,
		workers:   workers,
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithComponent("consumer"),
		offsets:   newOffsetTracker(),
	}
}

// Run consumes until ctx is canceled, then waits for in-flight notifications
// to finish. In-flight handlers keep running after ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	jobs := make(chan kafka.Message, c.workers)
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				c.handle(workCtx, msg)
			}
		}()
	}

	c.log.Info().Int("workers", c.workers).Msg("consumer started")

	err := c.fetchLoop(ctx, jobs)
	close(jobs)
	wg.Wait()

	c.log.Info().Msg("consumer stopped")
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				// reader closed
				return nil
			}
			c.log.Error().Err(err).Msg("fetch failed")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		c.offsets.track(msg)
		select {
		case jobs <- msg:
		case <-ctx.Done():
			c.offsets.forget(msg)
			return nil
		}
	}
}

// handle decodes, dispatches and commits one message. Every message is
// committed, including invalid and failed ones, but a partition's offset
// only moves once all earlier messages of that partition have finished.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.log.With().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	result := c.dispatch(ctx, msg, log)
	c.metrics.RecordNotification(result)

	c.commit(ctx, msg, log)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, log zerolog.Logger) {
	// held across the commit so offsets reach the broker in ascending order
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	upTo, ok := c.offsets.complete(msg)
	if !ok {
		log.Debug().Msg("commit deferred until earlier offsets finish")
		return
	}
	if err := c.reader.CommitMessages(ctx, upTo); err != nil {
		log.Error().Err(err).Int64("commitOffset", upTo.Offset).Msg("commit failed")
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message, log zerolog.Logger) string {
	if et := header(msg, "eventType"); et != "" && et != models.EventBlobCreated {
		log.Debug().Str("eventType", et).Msg("ignoring event")
		return ResultIgnored
	}

	var ev models.BlobCreated
	if err := c.validator.Decode(msg.Value, &ev); err != nil {
		log.Warn().Err(err).Msg("invalid notification")
		return ResultInvalid
	}
	if ev.EventType != "" && ev.EventType != models.EventBlobCreated {
		log.Debug().Str("eventType", ev.EventType).Msg("ignoring event")
		return ResultIgnored
	}

	if err := c.handler(ctx, ev); err != nil {
		log.Error().Err(err).Str("name", ev.Name).Msg("notification failed")
		return ResultFailed
	}
	return ResultProcessed
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
