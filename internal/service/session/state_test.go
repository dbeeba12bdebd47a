package session

import (
	"sync"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("job-1")

	if lc.State() != StatePending {
		t.Errorf("expected StatePending, got %v", lc.State())
	}
	if lc.ID() != "job-1" {
		t.Errorf("expected job-1, got %v", lc.ID())
	}
	if lc.IsStopped() {
		t.Error("expected IsStopped to be false")
	}
	if lc.WasCanceled() {
		t.Error("expected WasCanceled to be false")
	}
}

func TestLifecycle_Start(t *testing.T) {
	lc := NewLifecycle("job-1")

	if err := lc.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateRunning {
		t.Errorf("expected StateRunning, got %v", lc.State())
	}
	if err := lc.Start(); err != ErrAlreadyStarted {
		t.Errorf("second start: expected ErrAlreadyStarted, got %v", err)
	}
}

func TestLifecycle_AcceptWhilePendingStartsSession(t *testing.T) {
	lc := NewLifecycle("job-1")

	if err := lc.Accept(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateRunning {
		t.Errorf("expected StateRunning, got %v", lc.State())
	}
}

func TestLifecycle_AcceptRejectedAfterCancel(t *testing.T) {
	lc := NewLifecycle("job-1")
	_ = lc.Start()

	if !lc.Cancel() {
		t.Fatal("expected first cancel to succeed")
	}
	if lc.Cancel() {
		t.Error("expected second cancel to report false")
	}
	if err := lc.Accept(); err != ErrSessionCanceled {
		t.Errorf("expected ErrSessionCanceled, got %v", err)
	}
}

func TestLifecycle_StopOnlyOnce(t *testing.T) {
	lc := NewLifecycle("job-1")
	_ = lc.Start()

	if !lc.Stop() {
		t.Fatal("expected first stop to report true")
	}
	if lc.Stop() {
		t.Error("expected second stop to report false")
	}
	if !lc.IsStopped() {
		t.Error("expected IsStopped to be true")
	}
	if err := lc.Accept(); err != ErrSessionStopped {
		t.Errorf("expected ErrSessionStopped, got %v", err)
	}
	if err := lc.Start(); err != ErrSessionStopped {
		t.Errorf("expected ErrSessionStopped from Start, got %v", err)
	}
	if lc.Cancel() {
		t.Error("expected cancel after stop to report false")
	}
}

func TestLifecycle_CanceledThenStopped(t *testing.T) {
	lc := NewLifecycle("job-1")
	_ = lc.Start()
	lc.Cancel()

	if !lc.Stop() {
		t.Fatal("expected stop after cancel to report true")
	}
	if !lc.WasCanceled() {
		t.Error("expected WasCanceled to survive the stop")
	}
}

func TestLifecycle_ConcurrentStop(t *testing.T) {
	lc := NewLifecycle("job-1")
	_ = lc.Start()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lc.Stop() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one stop to win, got %d", winners)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "PENDING"},
		{StateRunning, "RUNNING"},
		{StateCanceled, "CANCELED"},
		{StateStopped, "STOPPED"},
		{State(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
