package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"speech-insights-service/internal/blob"
	"speech-insights-service/internal/models"
	"speech-insights-service/internal/service/pipeline"
)

type fakeRunner struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	data []string
	rec  *models.Transcription
	err  error
}

func (r *fakeRunner) Run(ctx context.Context, job pipeline.Job) (*models.Transcription, error) {
	b, _ := io.ReadAll(job.Audio)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	r.data = append(r.data, string(b))
	if r.err != nil {
		return nil, r.err
	}
	rec := *r.rec
	rec.Name = job.Name
	return &rec, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	completed []models.TranscriptionCompleted
	failed    []models.TranscriptionFailed
	err       error
}

func (p *fakePublisher) PublishCompleted(ctx context.Context, ev models.TranscriptionCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, ev)
	return p.err
}

func (p *fakePublisher) PublishFailed(ctx context.Context, ev models.TranscriptionFailed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, ev)
	return p.err
}

func newTestHandler(t *testing.T) (*Handler, *blob.Local, *fakeRunner, *fakePublisher) {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir(), "incoming")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runner := &fakeRunner{rec: &models.Transcription{ID: 9, Sentiment: "neutral", KeyPhraseList: []string{"account"}, ProcessTime: 1.25}}
	pub := &fakePublisher{}
	return NewHandler(blobs, runner, pub, nil), blobs, runner, pub
}

func TestHandleBlobCreated_Success(t *testing.T) {
	h, blobs, runner, pub := newTestHandler(t)
	if err := blobs.Put(context.Background(), "call1.wav", strings.NewReader("RIFF-audio")); err != nil {
		t.Fatalf("put: %v", err)
	}
	triggered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return triggered }

	rec, err := h.HandleBlobCreated(context.Background(), models.BlobCreated{Container: "incoming", Name: "call1.wav", Size: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != 9 || rec.Name != "call1.wav" {
		t.Errorf("unexpected record %+v", rec)
	}
	if len(runner.jobs) != 1 || runner.data[0] != "RIFF-audio" {
		t.Fatalf("expected the blob body to reach the runner, got %v", runner.data)
	}
	if runner.jobs[0].ID == "" {
		t.Error("expected a job id")
	}
	if !runner.jobs[0].Started.Equal(triggered) {
		t.Errorf("expected job to start at trigger time, got %v", runner.jobs[0].Started)
	}

	if len(pub.completed) != 1 || len(pub.failed) != 0 {
		t.Fatalf("expected one completed event, got %d completed %d failed", len(pub.completed), len(pub.failed))
	}
	ev := pub.completed[0]
	if ev.JobID != runner.jobs[0].ID || ev.RecordID != 9 || ev.Sentiment != "neutral" || ev.ProcessTime != 1.25 {
		t.Errorf("unexpected completed event %+v", ev)
	}
}

func TestHandleBlobCreated_RunFailure(t *testing.T) {
	h, blobs, runner, pub := newTestHandler(t)
	_ = blobs.Put(context.Background(), "call1.wav", strings.NewReader("x"))
	runner.err = pipeline.ErrAnalysisFailed

	_, err := h.HandleBlobCreated(context.Background(), models.BlobCreated{Container: "incoming", Name: "call1.wav"})
	if !errors.Is(err, pipeline.ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
	if len(pub.failed) != 1 || pub.failed[0].Kind != "analysis_failed" || pub.failed[0].Name != "call1.wav" {
		t.Errorf("unexpected failed events %+v", pub.failed)
	}
	if len(pub.completed) != 0 {
		t.Error("expected no completed event")
	}
}

func TestHandleBlobCreated_MissingBlob(t *testing.T) {
	h, _, runner, pub := newTestHandler(t)

	_, err := h.HandleBlobCreated(context.Background(), models.BlobCreated{Container: "incoming", Name: "missing.wav"})
	if !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(runner.jobs) != 0 {
		t.Error("expected no run")
	}
	if len(pub.failed) != 1 || pub.failed[0].Kind != "blob_not_found" {
		t.Errorf("unexpected failed events %+v", pub.failed)
	}
}

func TestHandleBlobCreated_OtherContainer(t *testing.T) {
	h, _, runner, pub := newTestHandler(t)
	ev := models.BlobCreated{Container: "archive", Name: "call1.wav"}

	if _, err := h.HandleBlobCreated(context.Background(), ev); !errors.Is(err, ErrOtherContainer) {
		t.Fatalf("expected ErrOtherContainer, got %v", err)
	}
	if err := h.Consume(context.Background(), ev); err != nil {
		t.Errorf("expected Consume to skip silently, got %v", err)
	}
	if len(runner.jobs) != 0 || len(pub.failed) != 0 {
		t.Error("expected no run and no events")
	}
}

func TestHandleBlobCreated_Invalid(t *testing.T) {
	h, _, runner, _ := newTestHandler(t)
	if _, err := h.HandleBlobCreated(context.Background(), models.BlobCreated{Container: "incoming"}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(runner.jobs) != 0 {
		t.Error("expected no run")
	}
}

func TestConsume_PropagatesRunErrors(t *testing.T) {
	h, blobs, runner, _ := newTestHandler(t)
	_ = blobs.Put(context.Background(), "a.wav", strings.NewReader("x"))
	runner.err = pipeline.ErrRecognitionTimeout

	if err := h.Consume(context.Background(), models.BlobCreated{Container: "incoming", Name: "a.wav"}); !errors.Is(err, pipeline.ErrRecognitionTimeout) {
		t.Errorf("expected run error, got %v", err)
	}
}

func TestPublishErrorDoesNotFailRun(t *testing.T) {
	h, blobs, _, pub := newTestHandler(t)
	_ = blobs.Put(context.Background(), "a.wav", strings.NewReader("x"))
	pub.err = errors.New("broker down")

	if _, err := h.HandleBlobCreated(context.Background(), models.BlobCreated{Container: "incoming", Name: "a.wav"}); err != nil {
		t.Errorf("expected publish failure to be logged only, got %v", err)
	}
}

func TestReprocess(t *testing.T) {
	h, blobs, runner, _ := newTestHandler(t)
	_ = blobs.Put(context.Background(), "again.wav", strings.NewReader("x"))

	rec, err := h.Reprocess(context.Background(), "again.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Name != "again.wav" || len(runner.jobs) != 1 {
		t.Errorf("unexpected reprocess result %+v", rec)
	}
}
