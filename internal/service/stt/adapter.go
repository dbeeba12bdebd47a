// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"
	"fmt"
	"time"
)

// Reason classifies a recognition result.
type Reason int

const (
	// ReasonRecognizedSpeech is a final result for one utterance.
	ReasonRecognizedSpeech Reason = iota
	// ReasonRecognizingSpeech is an interim hypothesis that may still change.
	ReasonRecognizingSpeech
	// ReasonNoMatch means speech was detected but could not be recognized.
	ReasonNoMatch
)

func (r Reason) String() string {
	switch r {
	case ReasonRecognizedSpeech:
		return "RecognizedSpeech"
	case ReasonRecognizingSpeech:
		return "RecognizingSpeech"
	case ReasonNoMatch:
		return "NoMatch"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Event is one recognition result delivered by the provider.
type Event struct {
	Reason     Reason
	Text       string
	Confidence float64
	Offset     time.Duration // end of the result relative to the start of the audio
}

// Callback receives session and recognition events from the STT provider.
// Calls may arrive on provider-managed goroutines.
type Callback interface {
	// OnSessionStarted is called once the provider accepted the session.
	OnSessionStarted()

	// OnRecognized is called for every recognition result, in arrival order.
	OnRecognized(ev Event)

	// OnCanceled is called when the provider aborts the session.
	// OnSessionStopped still follows.
	OnCanceled(err error)

	// OnSessionStopped is called exactly once when the session ends.
	OnSessionStopped()
}

// Adapter defines the interface for STT providers (Google, Azure, AWS, etc.).
type Adapter interface {
	// StartContinuous begins recognizing the audio file at audioPath and
	// returns once the session is running. Results are delivered to cb.
	StartContinuous(ctx context.Context, audioPath string, cb Callback) error

	// Close stops recognition and releases resources.
	Close() error
}

// Factory creates one adapter per recognition session.
type Factory func(ctx context.Context) (Adapter, error)
