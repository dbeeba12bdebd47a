// Package audio provides the recognition session handler that collects the
// transcript of one audio file, plus WAV container parsing.
package audio

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-insights-service/internal/observability/metrics"
	"speech-insights-service/internal/service/session"
	"speech-insights-service/internal/service/stt"
)

// Handler implements stt.Callback for one recognition session.
// It keeps the recognized utterances in arrival order and signals Done once
// the engine reports the session stopped. Only RecognizedSpeech results enter
// the transcript; every other reason is counted and dropped.
type Handler struct {
	lifecycle *session.Lifecycle
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	utterances []string
	cancelErr  error
	startedAt  time.Time
	stoppedAt  time.Time

	done chan struct{}
}

// NewHandler creates a handler for the session identified by jobID.
func NewHandler(jobID string, log zerolog.Logger, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Handler{
		lifecycle: session.NewLifecycle(jobID),
		log:       log,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// Done is closed after the session stopped. Reading the transcript is safe
// once Done is closed.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Transcript returns the recognized utterances, each followed by a newline.
func (h *Handler) Transcript() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	for _, u := range h.utterances {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	return b.String()
}

// Utterances returns a copy of the recognized utterances in arrival order.
func (h *Handler) Utterances() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.utterances...)
}

// Err returns the cancellation error reported by the engine, if any.
func (h *Handler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelErr
}

// Canceled reports whether the engine canceled the session.
func (h *Handler) Canceled() bool {
	return h.lifecycle.WasCanceled()
}

// State returns the current session state.
func (h *Handler) State() session.State {
	return h.lifecycle.State()
}

// Elapsed returns the time between session start and stop.
func (h *Handler) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() || h.stoppedAt.IsZero() {
		return 0
	}
	return h.stoppedAt.Sub(h.startedAt)
}

// --- stt.Callback implementation ---

// OnSessionStarted is called when the engine accepted the session.
func (h *Handler) OnSessionStarted() {
	if err := h.lifecycle.Start(); err != nil {
		h.log.Debug().Err(err).Str("state", h.lifecycle.State().String()).Msg("session start ignored")
		return
	}
	h.mu.Lock()
	h.startedAt = time.Now()
	h.mu.Unlock()

	h.log.Info().Msg("speech recognition session started")
}

// OnRecognized appends RecognizedSpeech results to the transcript.
func (h *Handler) OnRecognized(ev stt.Event) {
	if ev.Reason != stt.ReasonRecognizedSpeech {
		h.metrics.RecordRecognitionEvent(ev.Reason.String(), false)
		return
	}
	if err := h.lifecycle.Accept(); err != nil {
		h.log.Debug().
			Err(err).
			Str("state", h.lifecycle.State().String()).
			Msg("recognized result after session end ignored")
		h.metrics.RecordRecognitionEvent(ev.Reason.String(), false)
		return
	}

	h.mu.Lock()
	h.utterances = append(h.utterances, ev.Text)
	count := len(h.utterances)
	h.mu.Unlock()

	h.metrics.RecordRecognitionEvent(ev.Reason.String(), true)
	h.log.Debug().
		Int("utterance", count).
		Float64("confidence", ev.Confidence).
		Dur("offset", ev.Offset).
		Msg("utterance recognized")
}

// OnCanceled records the engine error. The session stays open until
// OnSessionStopped.
func (h *Handler) OnCanceled(err error) {
	if !h.lifecycle.Cancel() {
		return
	}
	h.mu.Lock()
	h.cancelErr = err
	h.mu.Unlock()

	h.log.Warn().Err(err).Msg("speech recognition canceled")
}

// OnSessionStopped closes Done. Repeated calls are ignored.
func (h *Handler) OnSessionStopped() {
	if !h.lifecycle.Stop() {
		return
	}
	h.mu.Lock()
	h.stoppedAt = time.Now()
	count := len(h.utterances)
	h.mu.Unlock()

	h.log.Info().Int("utterances", count).Msg("speech recognition session stopped")
	close(h.done)
}
