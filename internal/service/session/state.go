// Package session provides the lifecycle state machine of one recognition session.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a recognition session.
type State int

const (
	// StatePending - Session created, engine has not reported start yet.
	StatePending State = iota
	// StateRunning - Engine is delivering results.
	StateRunning
	// StateCanceled - Engine reported a cancellation, results are no longer accepted.
	StateCanceled
	// StateStopped - Session stopped. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateCanceled:
		return "CANCELED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionCanceled = errors.New("session was canceled")
	ErrSessionStopped  = errors.New("session is stopped")
)

// Lifecycle manages the state machine for a single recognition session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PENDING → RUNNING → STOPPED
//	   │         │         ▲
//	   │         └─ CANCELED ┘
//	   └──────────────────┘
//
// Rules:
//   - Results are accepted while PENDING or RUNNING. A result seen while
//     PENDING moves the session to RUNNING.
//   - CANCELED rejects results but still waits for the stop.
//   - STOPPED is reached once. Stop reports whether this call performed it.
type Lifecycle struct {
	mu       sync.RWMutex
	id       string
	state    State
	canceled bool
}

// NewLifecycle creates a new session lifecycle in PENDING state.
func NewLifecycle(id string) *Lifecycle {
	return &Lifecycle{
		id:    id,
		state: StatePending,
	}
}

// ID returns the session ID.
func (l *Lifecycle) ID() string {
	return l.id
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsStopped returns true once the session reached STOPPED.
func (l *Lifecycle) IsStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStopped
}

// WasCanceled returns true if the session was canceled at any point.
func (l *Lifecycle) WasCanceled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.canceled
}

// Start transitions PENDING to RUNNING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending:
		l.state = StateRunning
		return nil
	case StateRunning:
		return ErrAlreadyStarted
	case StateCanceled:
		return ErrSessionCanceled
	case StateStopped:
		return ErrSessionStopped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Accept validates that a recognition result may be recorded.
func (l *Lifecycle) Accept() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending:
		l.state = StateRunning
		return nil
	case StateRunning:
		return nil
	case StateCanceled:
		return ErrSessionCanceled
	case StateStopped:
		return ErrSessionStopped
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Cancel moves a live session to CANCELED.
// Returns true if the session was canceled, false if already canceled or stopped.
func (l *Lifecycle) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateCanceled || l.state == StateStopped {
		return false
	}
	l.state = StateCanceled
	l.canceled = true
	return true
}

// Stop transitions the session to STOPPED. Idempotent.
// Returns true only for the call that performed the transition.
func (l *Lifecycle) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return false
	}
	l.state = StateStopped
	return true
}
