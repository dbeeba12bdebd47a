// Package pipeline runs one audio file through recognition, text analysis and
// persistence. A run completes only after its record is saved.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-insights-service/internal/config"
	"speech-insights-service/internal/models"
	"speech-insights-service/internal/observability/logging"
	"speech-insights-service/internal/observability/metrics"
	"speech-insights-service/internal/service/audio"
	"speech-insights-service/internal/service/stt"
	"speech-insights-service/internal/service/textanalytics"
)

// DefaultRecognitionTimeout bounds the wait for a session to stop.
const DefaultRecognitionTimeout = 10 * time.Minute

// TempPattern names the per-run audio files.
const TempPattern = "speech-*.wav"

// RecordStore persists finished runs.
type RecordStore interface {
	Save(ctx context.Context, rec *models.Transcription) error
}

// Options configures an Orchestrator.
type Options struct {
	TempDir               string
	RecognitionTimeout    time.Duration
	EmptyTranscriptPolicy string // persist, reject
	AnalysisFailurePolicy string // drop, partial
	Provider              string // metrics label
}

// Job is one unit of work.
type Job struct {
	ID      string
	Name    string
	Audio   io.Reader
	// Started is when the trigger fired. Zero means when Run is called.
	Started time.Time
}

// Orchestrator drives runs. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	opts     Options
	factory  stt.Factory
	analyzer textanalytics.Analyzer
	store    RecordStore
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates an orchestrator.
func New(opts Options, factory stt.Factory, analyzer textanalytics.Analyzer, store RecordStore) (*Orchestrator, error) {
	if factory == nil {
		return nil, errors.New("pipeline: stt factory is required")
	}
	if analyzer == nil {
		return nil, errors.New("pipeline: analyzer is required")
	}
	if store == nil {
		return nil, errors.New("pipeline: record store is required")
	}
	if opts.RecognitionTimeout <= 0 {
		opts.RecognitionTimeout = DefaultRecognitionTimeout
	}
	if opts.EmptyTranscriptPolicy == "" {
		opts.EmptyTranscriptPolicy = config.EmptyTranscriptPersist
	}
	if opts.AnalysisFailurePolicy == "" {
		opts.AnalysisFailurePolicy = config.AnalysisFailureDrop
	}
	if opts.Provider == "" {
		opts.Provider = "unknown"
	}
	if opts.TempDir != "" {
		if err := os.MkdirAll(opts.TempDir, 0o750); err != nil {
			return nil, fmt.Errorf("pipeline: temp dir: %w", err)
		}
	}

	return &Orchestrator{
		opts:     opts,
		factory:  factory,
		analyzer: analyzer,
		store:    store,
		log:      logging.WithComponent("pipeline"),
		metrics:  metrics.DefaultMetrics,
		now:      time.Now,
	}, nil
}

// WithLogger replaces the base logger.
func (o *Orchestrator) WithLogger(l zerolog.Logger) *Orchestrator {
	o.log = l
	return o
}

// WithMetrics replaces the metrics sink.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Process runs audio under a fresh job id.
func (o *Orchestrator) Process(ctx context.Context, name string, r io.Reader) (*models.Transcription, error) {
	return o.Run(ctx, Job{ID: uuid.NewString(), Name: name, Audio: r})
}

// Run transcribes, analyzes and persists one job. The temp file is removed on
// every path.
func (o *Orchestrator) Run(ctx context.Context, job Job) (rec *models.Transcription, err error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := job.Started
	if start.IsZero() {
		start = o.now()
	}
	log := logging.WithJob(o.log, job.ID, job.Name)

	o.metrics.RecordJobStart()
	defer func() {
		o.metrics.RecordJobEnd(Kind(err), o.now().Sub(start).Seconds())
		if err != nil {
			log.Error().Err(err).Str("kind", Kind(err)).Msg("run failed")
		}
	}()

	path, err := o.materialize(job.Audio)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := RemoveTemp(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove temp file")
		}
	}()

	h, err := o.recognize(ctx, job.ID, path, log)
	if err != nil {
		return nil, err
	}

	transcript := h.Transcript()
	if transcript == "" {
		if h.Canceled() {
			if cause := h.Err(); cause != nil {
				return nil, fmt.Errorf("%w: %w", ErrRecognitionFailed, cause)
			}
			return nil, ErrRecognitionFailed
		}
		if o.opts.EmptyTranscriptPolicy == config.EmptyTranscriptReject {
			return nil, ErrEmptyTranscript
		}
		log.Warn().Msg("empty transcript, skipping analysis")
	}

	var (
		sentiment string
		phrases   = []string{}
	)
	if transcript != "" {
		s, p, aErr := o.analyze(ctx, transcript)
		switch {
		case aErr == nil:
			sentiment = string(s.Label)
			if p != nil {
				phrases = p
			}
		case o.opts.AnalysisFailurePolicy == config.AnalysisFailurePartial:
			log.Error().Err(aErr).Msg("analysis failed, persisting without insights")
		default:
			return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, aErr)
		}
	}

	rec = &models.Transcription{
		Name:          job.Name,
		Transcript:    transcript,
		KeyPhrases:    strings.Join(phrases, ""),
		KeyPhraseList: phrases,
		Sentiment:     sentiment,
		ProcessTime:   o.now().Sub(start).Seconds(),
	}

	log.Info().
		Str("sentiment", rec.Sentiment).
		Int("key_phrases", len(phrases)).
		Float64("process_time", rec.ProcessTime).
		Msg("saving transcription")

	saveErr := o.store.Save(ctx, rec)
	o.metrics.RecordPersist(saveErr)
	if saveErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, saveErr)
	}
	return rec, nil
}

// materialize copies audio into a run-unique temp file.
func (o *Orchestrator) materialize(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("pipeline: no audio")
	}
	f, err := os.CreateTemp(o.opts.TempDir, TempPattern)
	if err != nil {
		return "", fmt.Errorf("pipeline: create temp file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = RemoveTemp(path)
		return "", fmt.Errorf("pipeline: write temp file: %w", err)
	}
	o.metrics.RecordAudioReceived(n)
	return path, nil
}

// recognize runs one continuous recognition session over path and waits for
// it to stop.
func (o *Orchestrator) recognize(ctx context.Context, jobID, path string, log zerolog.Logger) (*audio.Handler, error) {
	adapter, err := o.factory(ctx)
	if err != nil {
		o.metrics.RecordSTTError(o.opts.Provider, "create")
		return nil, fmt.Errorf("%w: create recognizer: %w", ErrRecognitionFailed, err)
	}
	defer adapter.Close()

	h := audio.NewHandler(jobID, logging.WithSession(log, o.opts.Provider), o.metrics)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := adapter.StartContinuous(sctx, path, h); err != nil {
		o.metrics.RecordSTTError(o.opts.Provider, "start")
		return nil, fmt.Errorf("%w: start: %w", ErrRecognitionFailed, err)
	}

	timer := time.NewTimer(o.opts.RecognitionTimeout)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
		o.metrics.RecordSTTError(o.opts.Provider, "timeout")
		return nil, fmt.Errorf("%w after %s", ErrRecognitionTimeout, o.opts.RecognitionTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("pipeline: waiting for recognition: %w", ctx.Err())
	}

	o.metrics.RecordRecognition(o.opts.Provider, h.Elapsed().Seconds())
	return h, nil
}

// analyze calls sentiment first, then key phrases.
func (o *Orchestrator) analyze(ctx context.Context, text string) (textanalytics.Sentiment, []string, error) {
	s, err := o.analyzer.AnalyzeSentiment(ctx, text)
	if err != nil {
		return textanalytics.Sentiment{}, nil, fmt.Errorf("sentiment: %w", err)
	}
	p, err := o.analyzer.ExtractKeyPhrases(ctx, text)
	if err != nil {
		return textanalytics.Sentiment{}, nil, fmt.Errorf("key phrases: %w", err)
	}
	return s, p, nil
}

// RemoveTemp deletes path. A missing file is not an error.
func RemoveTemp(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
