// Package events connects the service to Kafka: it consumes blob-created
// notifications and publishes run outcomes.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-insights-service/internal/models"
	"speech-insights-service/internal/observability/metrics"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes events. Each message carries its own topic so one
// writer serves every topic.
type Publisher struct {
	writer          messageWriter
	principal       string
	blobEventsTopic string
	completedTopic  string
	failedTopic     string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	BlobEventsTopic string
	CompletedTopic  string
	FailedTopic     string
	Principal       string
	Enabled         bool
}

// New creates a publisher. With Kafka disabled it only logs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	p := &Publisher{
		principal:       cfg.Principal,
		blobEventsTopic: cfg.BlobEventsTopic,
		completedTopic:  cfg.CompletedTopic,
		failedTopic:     cfg.FailedTopic,
		metrics:         m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		Transport:              &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("completedTopic", cfg.CompletedTopic).
		Str("failedTopic", cfg.FailedTopic).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishCompleted publishes a transcription.completed event keyed by file name.
func (p *Publisher) PublishCompleted(ctx context.Context, ev models.TranscriptionCompleted) error {
	ev.EventType = models.EventTranscriptionCompleted
	return p.publish(ctx, p.completedTopic, ev.EventType, ev.Name, ev)
}

// PublishFailed publishes a transcription.failed event keyed by file name.
func (p *Publisher) PublishFailed(ctx context.Context, ev models.TranscriptionFailed) error {
	ev.EventType = models.EventTranscriptionFailed
	return p.publish(ctx, p.failedTopic, ev.EventType, ev.Name, ev)
}

// PublishBlobCreated publishes a blob-created notification keyed by file name.
func (p *Publisher) PublishBlobCreated(ctx context.Context, ev models.BlobCreated) error {
	ev.EventType = models.EventBlobCreated
	return p.publish(ctx, p.blobEventsTopic, ev.EventType, ev.Name, ev)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
