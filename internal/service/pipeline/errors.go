package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by a failed run. Kind maps them to failure kinds.
var (
	ErrRecognitionTimeout = errors.New("pipeline: recognition timed out")
	ErrRecognitionFailed  = errors.New("pipeline: recognition failed")
	ErrEmptyTranscript    = fmt.Errorf("%w: empty transcript", ErrRecognitionFailed)
	ErrAnalysisFailed     = errors.New("pipeline: analysis failed")
	ErrPersistenceFailed  = errors.New("pipeline: persistence failed")
)

// Kind classifies a run error for metrics labels and failure events.
// It returns "" for a nil error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRecognitionTimeout):
		return "recognition_timeout"
	case errors.Is(err, ErrEmptyTranscript):
		return "empty_transcript"
	case errors.Is(err, ErrRecognitionFailed):
		return "recognition_failed"
	case errors.Is(err, ErrAnalysisFailed):
		return "analysis_failed"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
