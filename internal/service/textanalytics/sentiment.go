package textanalytics

import (
	"fmt"
	"strings"
)

// Label is the overall sentiment of a document.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
	Mixed    Label = "mixed"
)

// ParseLabel validates a sentiment label returned by the service.
func ParseLabel(s string) (Label, error) {
	switch l := Label(strings.ToLower(strings.TrimSpace(s))); l {
	case Positive, Neutral, Negative, Mixed:
		return l, nil
	default:
		return "", fmt.Errorf("textanalytics: unknown sentiment label %q", s)
	}
}

// ConfidenceScores are the per-class scores of a sentiment prediction.
type ConfidenceScores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Sentiment is the document-level sentiment result.
type Sentiment struct {
	Label  Label
	Scores ConfidenceScores
}
