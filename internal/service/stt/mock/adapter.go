// Package mock provides a mock STT adapter for running without cloud credentials.
// It replays a scripted sequence of recognition events asynchronously, the
// way a real engine delivers them from its own goroutines.
package mock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"speech-insights-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides a sample call for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// EventsFor expands utterances into interim and final recognition events.
func EventsFor(utterances []SimulatedUtterance) []stt.Event {
	var events []stt.Event
	var offset time.Duration
	for _, u := range utterances {
		for _, p := range u.Partials {
			offset += 300 * time.Millisecond
			events = append(events, stt.Event{Reason: stt.ReasonRecognizingSpeech, Text: p, Offset: offset})
		}
		offset += 500 * time.Millisecond
		events = append(events, stt.Event{
			Reason:     stt.ReasonRecognizedSpeech,
			Text:       u.Final,
			Confidence: u.Confidence,
			Offset:     offset,
		})
	}
	return events
}

// Script describes what a mock session delivers.
type Script struct {
	Events    []stt.Event
	Delay     time.Duration // pause before each event
	CancelErr error         // reported after the events, before the stop
	NeverStop bool          // session only ends on Close or context cancellation
	StartErr  error         // returned by StartContinuous
}

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	script Script

	mu      sync.Mutex
	started bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a mock adapter replaying script.
func New(script Script) *Adapter {
	return &Adapter{
		script: script,
		stopCh: make(chan struct{}),
	}
}

// Default creates a mock adapter replaying DefaultUtterances.
func Default() *Adapter {
	return New(Script{Events: EventsFor(DefaultUtterances), Delay: 50 * time.Millisecond})
}

// NewFactory returns an stt.Factory producing adapters for script.
func NewFactory(script Script) stt.Factory {
	return func(ctx context.Context) (stt.Adapter, error) {
		return New(script), nil
	}
}

// DefaultFactory returns an stt.Factory producing Default adapters.
func DefaultFactory() stt.Factory {
	return func(ctx context.Context) (stt.Adapter, error) {
		return Default(), nil
	}
}

// StartContinuous begins replaying the script. The audio file must exist.
func (a *Adapter) StartContinuous(ctx context.Context, audioPath string, cb stt.Callback) error {
	if a.script.StartErr != nil {
		return a.script.StartErr
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("mock stt: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("mock stt: adapter closed")
	}
	if a.started {
		return fmt.Errorf("mock stt: session already started")
	}
	a.started = true

	a.wg.Add(1)
	go a.run(ctx, cb)
	return nil
}

func (a *Adapter) run(ctx context.Context, cb stt.Callback) {
	defer a.wg.Done()

	cb.OnSessionStarted()

	for _, ev := range a.script.Events {
		if !a.wait(ctx, a.script.Delay) {
			cb.OnCanceled(context.Canceled)
			cb.OnSessionStopped()
			return
		}
		cb.OnRecognized(ev)
	}

	if a.script.CancelErr != nil {
		cb.OnCanceled(a.script.CancelErr)
		cb.OnSessionStopped()
		return
	}

	if a.script.NeverStop {
		select {
		case <-a.stopCh:
		case <-ctx.Done():
		}
		cb.OnCanceled(context.Canceled)
	}
	cb.OnSessionStopped()
}

// wait pauses for d and reports false if the session was closed meanwhile.
func (a *Adapter) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-a.stopCh:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close ends the session and waits for the replay goroutine. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
