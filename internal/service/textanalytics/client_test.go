package textanalytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Endpoint:        srv.URL + "/",
		Credential:      "secret-key",
		MaxRetryElapsed: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no endpoint", Config{Credential: "k"}},
		{"no credential", Config{Endpoint: "https://ta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sentimentPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "secret-key" {
			t.Errorf("expected subscription key header, got %q", got)
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Documents) != 1 || req.Documents[0].Text != "hello there\n" || req.Documents[0].Language != "en" {
			t.Errorf("unexpected documents: %+v", req.Documents)
		}
		_, _ = w.Write([]byte(`{"documents":[{"id":"1","sentiment":"positive","confidenceScores":{"positive":0.9,"neutral":0.08,"negative":0.02},"sentences":[],"warnings":[]}],"errors":[],"modelVersion":"2022-11-01"}`))
	})

	s, err := c.AnalyzeSentiment(context.Background(), "hello there\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Label != Positive {
		t.Errorf("expected positive, got %s", s.Label)
	}
	if s.Scores.Positive != 0.9 {
		t.Errorf("expected positive score 0.9, got %v", s.Scores.Positive)
	}
}

func TestExtractKeyPhrases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != keyPhrasesPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"documents":[{"id":"1","keyPhrases":["subscription","account"],"warnings":[]}],"errors":[]}`))
	})

	phrases, err := c.ExtractKeyPhrases(context.Background(), "cancel my subscription account")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(phrases) != 2 || phrases[0] != "subscription" || phrases[1] != "account" {
		t.Errorf("expected phrases in service order, got %v", phrases)
	}
}

func TestPost_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
	})

	_, err := c.AnalyzeSentiment(context.Background(), "text")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "invalid subscription key") {
		t.Errorf("expected service message, got %q", apiErr.Message)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected exactly 1 call, got %d", n)
	}
}

func TestPost_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"documents":[{"id":"1","sentiment":"neutral","confidenceScores":{}}],"errors":[]}`))
	})

	s, err := c.AnalyzeSentiment(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Label != Neutral {
		t.Errorf("expected neutral, got %s", s.Label)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestDocumentError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[],"errors":[{"id":"1","error":{"code":"InvalidArgument","message":"Document text is empty."}}]}`))
	})

	_, err := c.ExtractKeyPhrases(context.Background(), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != "InvalidArgument" {
		t.Errorf("expected InvalidArgument, got %s", apiErr.Code)
	}
}

func TestNoResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[],"errors":[]}`))
	})

	if _, err := c.AnalyzeSentiment(context.Background(), "text"); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}

func TestDocumentTooLarge(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	text := strings.Repeat("é", MaxDocumentChars+1)
	if _, err := c.AnalyzeSentiment(context.Background(), text); !errors.Is(err, ErrDocumentTooLarge) {
		t.Errorf("expected ErrDocumentTooLarge, got %v", err)
	}
	if _, err := c.ExtractKeyPhrases(context.Background(), text); !errors.Is(err, ErrDocumentTooLarge) {
		t.Errorf("expected ErrDocumentTooLarge, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("expected no calls, got %d", n)
	}

	// exactly at the limit counts runes, not bytes
	if err := checkSize(strings.Repeat("é", MaxDocumentChars)); err != nil {
		t.Errorf("expected document at the limit to pass, got %v", err)
	}
}

func TestUnknownLabel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[{"id":"1","sentiment":"ecstatic"}],"errors":[]}`))
	})

	if _, err := c.AnalyzeSentiment(context.Background(), "text"); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{"positive", Positive, false},
		{"Neutral", Neutral, false},
		{" negative ", Negative, false},
		{"mixed", Mixed, false},
		{"", "", true},
		{"happy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLabel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLabel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.AnalyzeSentiment(ctx, "text"); err == nil {
		t.Error("expected error for canceled context")
	}
}
