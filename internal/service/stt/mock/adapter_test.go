package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"speech-insights-service/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu       sync.Mutex
	started  int
	events   []stt.Event
	errors   []error
	stopped  int
	stopDone chan struct{}
}

func newTestCallback() *testCallback {
	return &testCallback{stopDone: make(chan struct{})}
}

func (c *testCallback) OnSessionStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *testCallback) OnRecognized(ev stt.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *testCallback) OnCanceled(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) OnSessionStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	if c.stopped == 1 {
		close(c.stopDone)
	}
}

func (c *testCallback) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case <-c.stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session stop")
	}
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEventsFor(t *testing.T) {
	events := EventsFor([]SimulatedUtterance{
		{Partials: []string{"a", "ab"}, Final: "abc", Confidence: 0.9},
		{Final: "done", Confidence: 0.8},
	})

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Reason != stt.ReasonRecognizingSpeech || events[2].Reason != stt.ReasonRecognizedSpeech {
		t.Errorf("unexpected reasons: %v, %v", events[0].Reason, events[2].Reason)
	}
	if events[3].Text != "done" {
		t.Errorf("expected last final 'done', got %q", events[3].Text)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Offset <= events[i-1].Offset {
			t.Errorf("expected increasing offsets, got %v then %v", events[i-1].Offset, events[i].Offset)
		}
	}
}

func TestAdapter_ReplaysScriptInOrder(t *testing.T) {
	script := Script{Events: []stt.Event{
		{Reason: stt.ReasonRecognizedSpeech, Text: "hello there"},
		{Reason: stt.ReasonNoMatch},
		{Reason: stt.ReasonRecognizedSpeech, Text: "thanks for calling"},
	}}
	a := New(script)
	cb := newTestCallback()

	if err := a.StartContinuous(context.Background(), audioFile(t), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb.waitStopped(t)
	_ = a.Close()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.started != 1 || cb.stopped != 1 {
		t.Errorf("expected one start and one stop, got %d/%d", cb.started, cb.stopped)
	}
	if len(cb.events) != 3 || cb.events[2].Text != "thanks for calling" {
		t.Errorf("expected scripted events in order, got %+v", cb.events)
	}
	if len(cb.errors) != 0 {
		t.Errorf("expected no cancellation, got %v", cb.errors)
	}
}

func TestAdapter_CancelErr(t *testing.T) {
	boom := errors.New("unsupported audio")
	a := New(Script{CancelErr: boom})
	cb := newTestCallback()

	if err := a.StartContinuous(context.Background(), audioFile(t), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb.waitStopped(t)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errors) != 1 || !errors.Is(cb.errors[0], boom) {
		t.Errorf("expected cancel error, got %v", cb.errors)
	}
}

func TestAdapter_NeverStopEndsOnClose(t *testing.T) {
	a := New(Script{NeverStop: true})
	cb := newTestCallback()

	if err := a.StartContinuous(context.Background(), audioFile(t), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-cb.stopDone:
		t.Fatal("session should not stop on its own")
	case <-time.After(50 * time.Millisecond):
	}

	if err := a.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	cb.waitStopped(t)

	// Close is idempotent
	if err := a.Close(); err != nil {
		t.Errorf("second close: unexpected error: %v", err)
	}
}

func TestAdapter_ContextCancelStopsDelayedReplay(t *testing.T) {
	a := New(Script{
		Events: []stt.Event{{Reason: stt.ReasonRecognizedSpeech, Text: "slow"}},
		Delay:  time.Hour,
	})
	cb := newTestCallback()
	ctx, cancel := context.WithCancel(context.Background())

	if err := a.StartContinuous(ctx, audioFile(t), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	cb.waitStopped(t)
	_ = a.Close()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.events) != 0 {
		t.Errorf("expected no events after cancel, got %+v", cb.events)
	}
}

func TestAdapter_StartErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	if err := New(Script{StartErr: boom}).StartContinuous(context.Background(), audioFile(t), newTestCallback()); !errors.Is(err, boom) {
		t.Errorf("expected start error, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "missing.wav")
	if err := New(Script{}).StartContinuous(context.Background(), missing, newTestCallback()); err == nil {
		t.Error("expected error for missing audio file")
	}

	a := New(Script{NeverStop: true})
	path := audioFile(t)
	if err := a.StartContinuous(context.Background(), path, newTestCallback()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.StartContinuous(context.Background(), path, newTestCallback()); err == nil {
		t.Error("expected error starting twice")
	}
	_ = a.Close()
}

func TestDefaultFactory(t *testing.T) {
	adapter, err := DefaultFactory()(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := adapter.(*Adapter); !ok {
		t.Fatalf("expected *Adapter, got %T", adapter)
	}
}
