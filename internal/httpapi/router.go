// Package httpapi serves health, metrics, the transcription read API and
// manual reprocessing.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"speech-insights-service/internal/app"
	"speech-insights-service/internal/blob"
	"speech-insights-service/internal/models"
	"speech-insights-service/internal/observability/logging"
	"speech-insights-service/internal/service/pipeline"
	"speech-insights-service/internal/store"
)

const defaultListLimit = 50

// RecordReader reads persisted transcriptions.
type RecordReader interface {
	Get(ctx context.Context, id uint) (*models.Transcription, error)
	List(ctx context.Context, limit int) ([]models.Transcription, error)
	Ping(ctx context.Context) error
}

// Reprocessor runs the pipeline for an existing blob.
type Reprocessor interface {
	Reprocess(ctx context.Context, name string) (*models.Transcription, error)
}

// Deps are the router's collaborators. MetricsHandler defaults to the
// default Prometheus registry.
type Deps struct {
	Records        RecordReader
	Reprocessor    Reprocessor
	MetricsHandler http.Handler
}

type api struct {
	app  *app.Application
	deps Deps
	log  zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, deps Deps) http.Handler {
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}
	a := &api{app: application, deps: deps, log: logging.WithComponent("http")}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.readiness)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.info)
		r.Get("/transcriptions", a.listTranscriptions)
		r.Get("/transcriptions/{id}", a.getTranscription)
		r.Post("/blobs/{name}/process", a.processBlob)
	})

	return r
}

func (a *api) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Records.Ping(ctx); err != nil {
		a.log.Warn().Err(err).Msg("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *api) info(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"service": "speech-insights-service"}
	if a.app != nil {
		body["startupTime"] = a.app.StartupTime
		body["uptimeSeconds"] = a.app.Uptime().Seconds()
		if a.app.Cfg != nil {
			body["service"] = a.app.Cfg.Service.Name
			body["environment"] = a.app.Cfg.Service.Env
			body["sttProvider"] = a.app.Cfg.STT.Provider
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) listTranscriptions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := a.deps.Records.List(r.Context(), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("list transcriptions failed")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list transcriptions")
		return
	}
	if recs == nil {
		recs = []models.Transcription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs, "count": len(recs)})
}

func (a *api) getTranscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return
	}

	rec, err := a.deps.Records.Get(r.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "transcription not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Uint64("id", id).Msg("get transcription failed")
		writeError(w, http.StatusInternalServerError, "internal", "failed to load transcription")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// processBlob runs the pipeline synchronously. Names containing slashes are
// passed URL-escaped.
func (a *api) processBlob(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "invalid blob name")
		return
	}

	rec, err := a.deps.Reprocessor.Reprocess(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "blob_not_found", err.Error())
	case errors.Is(err, blob.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
	case pipeline.Kind(err) == "internal":
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	default:
		writeError(w, http.StatusUnprocessableEntity, pipeline.Kind(err), err.Error())
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
