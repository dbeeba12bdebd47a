// Package ingest turns blob-created notifications into pipeline runs and
// publishes each run's outcome.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-insights-service/internal/blob"
	"speech-insights-service/internal/models"
	"speech-insights-service/internal/observability/logging"
	"speech-insights-service/internal/schema"
	"speech-insights-service/internal/service/pipeline"
)

// ErrOtherContainer marks notifications for containers this service does not watch.
var ErrOtherContainer = errors.New("ingest: notification for another container")

// Runner executes one pipeline job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (*models.Transcription, error)
}

// OutcomePublisher publishes run outcomes.
type OutcomePublisher interface {
	PublishCompleted(ctx context.Context, ev models.TranscriptionCompleted) error
	PublishFailed(ctx context.Context, ev models.TranscriptionFailed) error
}

// Handler is the trigger handler.
type Handler struct {
	blobs     blob.Store
	runner    Runner
	publisher OutcomePublisher
	validator *schema.Validator
	log       zerolog.Logger
	now       func() time.Time
}

// NewHandler creates a trigger handler for the container served by blobs.
func NewHandler(blobs blob.Store, runner Runner, publisher OutcomePublisher, v *schema.Validator) *Handler {
	if v == nil {
		v = schema.New()
	}
	return &Handler{
		blobs:     blobs,
		runner:    runner,
		publisher: publisher,
		validator: v,
		log:       logging.WithComponent("ingest"),
		now:       time.Now,
	}
}

// Consume adapts HandleBlobCreated to the consumer callback. Notifications for
// other containers are skipped without error.
func (h *Handler) Consume(ctx context.Context, ev models.BlobCreated) error {
	_, err := h.HandleBlobCreated(ctx, ev)
	if errors.Is(err, ErrOtherContainer) {
		return nil
	}
	return err
}

// Reprocess runs the pipeline for an existing blob in the watched container.
func (h *Handler) Reprocess(ctx context.Context, name string) (*models.Transcription, error) {
	return h.HandleBlobCreated(ctx, models.BlobCreated{
		EventType: models.EventBlobCreated,
		Container: h.blobs.Container(),
		Name:      name,
		URL:       h.blobs.URL(name),
		EventTime: h.now().UTC(),
	})
}

// HandleBlobCreated opens the blob named by ev, runs it through the pipeline
// and publishes the outcome. The name is passed through unchanged.
func (h *Handler) HandleBlobCreated(ctx context.Context, ev models.BlobCreated) (*models.Transcription, error) {
	started := h.now()
	if err := h.validator.Validate(&ev); err != nil {
		return nil, err
	}
	if ev.Container != h.blobs.Container() {
		h.log.Debug().Str("container", ev.Container).Str("name", ev.Name).Msg("skipping notification")
		return nil, fmt.Errorf("%w: %s", ErrOtherContainer, ev.Container)
	}

	jobID := uuid.NewString()
	log := logging.WithJob(h.log, jobID, ev.Name)

	body, size, err := h.blobs.Open(ctx, ev.Name)
	if err != nil {
		kind := "blob_open_failed"
		if errors.Is(err, blob.ErrNotFound) {
			kind = "blob_not_found"
		}
		h.publishFailed(ctx, jobID, ev.Name, kind, err, log)
		return nil, err
	}
	defer body.Close()

	log.Info().Msgf("%s: Size: %d Bytes", ev.Name, size)

	rec, err := h.runner.Run(ctx, pipeline.Job{ID: jobID, Name: ev.Name, Audio: body, Started: started})
	if err != nil {
		h.publishFailed(ctx, jobID, ev.Name, pipeline.Kind(err), err, log)
		return nil, err
	}

	completed := models.TranscriptionCompleted{
		JobID:         jobID,
		RecordID:      rec.ID,
		Name:          rec.Name,
		Sentiment:     rec.Sentiment,
		KeyPhraseList: rec.KeyPhraseList,
		ProcessTime:   rec.ProcessTime,
		Timestamp:     h.now().UTC(),
	}
	if perr := h.publisher.PublishCompleted(ctx, completed); perr != nil {
		log.Warn().Err(perr).Msg("failed to publish completed event")
	}

	log.Info().Uint("record_id", rec.ID).Msg("transcription completed")
	return rec, nil
}

func (h *Handler) publishFailed(ctx context.Context, jobID, name, kind string, cause error, log zerolog.Logger) {
	failed := models.TranscriptionFailed{
		JobID:     jobID,
		Name:      name,
		Kind:      kind,
		Error:     cause.Error(),
		Timestamp: h.now().UTC(),
	}
	if perr := h.publisher.PublishFailed(ctx, failed); perr != nil {
		log.Warn().Err(perr).Msg("failed to publish failed event")
	}
}
