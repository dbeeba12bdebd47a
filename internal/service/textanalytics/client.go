// Package textanalytics is a client for the Text Analytics REST API (v3.1)
// covering document sentiment and key phrase extraction.
package textanalytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-insights-service/internal/observability/metrics"
)

// MaxDocumentChars is the service limit for one synchronous document.
const MaxDocumentChars = 5120

const (
	sentimentPath  = "/text/analytics/v3.1/sentiment"
	keyPhrasesPath = "/text/analytics/v3.1/keyPhrases"
	documentID     = "1"
)

// Errors for documents the service cannot analyze.
var (
	ErrDocumentTooLarge = errors.New("textanalytics: document exceeds size limit")
	ErrNoResult         = errors.New("textanalytics: no result for document")
)

// Analyzer returns the sentiment and key phrases of one document.
type Analyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error)
	ExtractKeyPhrases(ctx context.Context, text string) ([]string, error)
}

// APIError is a non-2xx response or a document-level error.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("textanalytics: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("textanalytics: document error %s: %s", e.Code, e.Message)
}

// Config holds client configuration.
type Config struct {
	Endpoint        string
	Credential      string
	Language        string
	RequestTimeout  time.Duration
	MaxRetryElapsed time.Duration
	HTTPClient      *http.Client
}

// Client implements Analyzer over HTTP.
type Client struct {
	endpoint   string
	credential string
	language   string
	maxElapsed time.Duration
	http       *http.Client
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// New validates cfg and creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("textanalytics: endpoint is required")
	}
	if strings.TrimSpace(cfg.Credential) == "" {
		return nil, errors.New("textanalytics: credential is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 20 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		credential: cfg.Credential,
		language:   cfg.Language,
		maxElapsed: cfg.MaxRetryElapsed,
		http:       hc,
		metrics:    metrics.DefaultMetrics,
		log:        log.With().Str("component", "textanalytics").Logger(),
	}, nil
}

type document struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type request struct {
	Documents []document `json:"documents"`
}

type documentError struct {
	ID    string `json:"id"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sentimentResponse struct {
	Documents []struct {
		ID               string           `json:"id"`
		Sentiment        string           `json:"sentiment"`
		ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	} `json:"documents"`
	Errors []documentError `json:"errors"`
}

type keyPhrasesResponse struct {
	Documents []struct {
		ID         string   `json:"id"`
		KeyPhrases []string `json:"keyPhrases"`
	} `json:"documents"`
	Errors []documentError `json:"errors"`
}

// AnalyzeSentiment returns the overall sentiment of text.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	start := time.Now()
	s, err := c.analyzeSentiment(ctx, text)
	c.metrics.RecordAnalysis("sentiment", err, time.Since(start).Seconds())
	return s, err
}

func (c *Client) analyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	if err := checkSize(text); err != nil {
		return Sentiment{}, err
	}

	var resp sentimentResponse
	if err := c.post(ctx, sentimentPath, c.request(text), &resp); err != nil {
		return Sentiment{}, err
	}
	if err := firstDocumentError(resp.Errors); err != nil {
		return Sentiment{}, err
	}
	if len(resp.Documents) == 0 {
		return Sentiment{}, ErrNoResult
	}

	label, err := ParseLabel(resp.Documents[0].Sentiment)
	if err != nil {
		return Sentiment{}, err
	}
	return Sentiment{Label: label, Scores: resp.Documents[0].ConfidenceScores}, nil
}

// ExtractKeyPhrases returns the key phrases of text in service order.
func (c *Client) ExtractKeyPhrases(ctx context.Context, text string) ([]string, error) {
	start := time.Now()
	p, err := c.extractKeyPhrases(ctx, text)
	c.metrics.RecordAnalysis("key_phrases", err, time.Since(start).Seconds())
	return p, err
}

func (c *Client) extractKeyPhrases(ctx context.Context, text string) ([]string, error) {
	if err := checkSize(text); err != nil {
		return nil, err
	}

	var resp keyPhrasesResponse
	if err := c.post(ctx, keyPhrasesPath, c.request(text), &resp); err != nil {
		return nil, err
	}
	if err := firstDocumentError(resp.Errors); err != nil {
		return nil, err
	}
	if len(resp.Documents) == 0 {
		return nil, ErrNoResult
	}
	return resp.Documents[0].KeyPhrases, nil
}

func (c *Client) request(text string) request {
	return request{Documents: []document{{ID: documentID, Language: c.language, Text: text}}}
}

func checkSize(text string) error {
	if n := utf8.RuneCountInString(text); n > MaxDocumentChars {
		return fmt.Errorf("%w: %d characters", ErrDocumentTooLarge, n)
	}
	return nil
}

func firstDocumentError(errs []documentError) error {
	if len(errs) == 0 {
		return nil
	}
	return &APIError{Code: errs[0].Error.Code, Message: errs[0].Error.Message}
}

// post sends body as JSON and decodes the response into out. Transport
// errors, 429 and 5xx are retried with exponential backoff; other 4xx
// responses fail immediately.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("textanalytics: marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("textanalytics: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Ocp-Apim-Subscription-Key", c.credential)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("request failed, retrying")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("textanalytics: read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			var er errorResponse
			if json.Unmarshal(data, &er) == nil && er.Error.Code != "" {
				apiErr.Code = er.Error.Code
				apiErr.Message = er.Error.Message
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Int("attempt", attempt).Msg("retryable response")
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("textanalytics: decode response: %w", err))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
