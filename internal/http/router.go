// Package http exposes the session and review-queue API over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thorwhalen/pacing/internal/agent"
	"github.com/thorwhalen/pacing/internal/agent/auditor"
	"github.com/thorwhalen/pacing/internal/app"
	"github.com/thorwhalen/pacing/internal/faults"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/session"
	"github.com/thorwhalen/pacing/internal/store"
)

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Platform session.Status `json:"platform"`
	Agents   []agent.Status `json:"agents"`
	Review   auditor.Stats  `json:"review"`
}

// StartRequest is the body of POST /v1/session/start.
type StartRequest struct {
	SessionID   string `json:"sessionId"`
	PatientID   string `json:"patientId"`
	ClinicianID string `json:"clinicianId"`
	SessionType string `json:"sessionType"`
}

// ReviewRequest is the body of POST /v1/review/{id}.
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if err := application.Ready(); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/transcript", h.transcript)

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", h.startSession)
			r.Post("/stop", h.stopSession)
		})

		r.Route("/review", func(r chi.Router) {
			r.Get("/", h.listReview)
			r.Post("/purge", h.purgeReview)
			r.Post("/{id}", h.markReviewed)
		})

		r.Route("/archive", func(r chi.Router) {
			r.Get("/sessions", h.listArchived)
			r.Get("/sessions/{id}/transcript", h.archivedTranscript)
		})
	})

	return r
}

type handlers struct {
	app *app.Application
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Platform: h.app.Orchestrator.Status(),
		Agents:   h.app.Orchestrator.AgentStatuses(),
		Review:   h.app.Auditor.Stats(),
	})
}

func (h *handlers) transcript(w http.ResponseWriter, _ *http.Request) {
	events := h.app.Orchestrator.Transcript()
	if events == nil {
		events = []models.TranscriptionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// Sessions outlive the request.
	run, err := h.app.StartSession(r.Context(), models.SessionContext{
		SessionID:   req.SessionID,
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		SessionType: req.SessionType,
	})
	var cfgErr *faults.ConfigError
	switch {
	case errors.Is(err, faults.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, run.Session())
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.app.StopSession(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.app.Orchestrator.Status())
}

func (h *handlers) listReview(w http.ResponseWriter, r *http.Request) {
	unreviewed, _ := strconv.ParseBool(r.URL.Query().Get("unreviewed"))
	if unreviewed {
		writeJSON(w, http.StatusOK, h.app.Auditor.ListUnreviewed())
		return
	}
	writeJSON(w, http.StatusOK, h.app.Auditor.ListAll())
}

func (h *handlers) markReviewed(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	id := chi.URLParam(r, "id")
	if !h.app.Auditor.MarkReviewed(id, req.Notes) {
		writeError(w, http.StatusNotFound, "review item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) purgeReview(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"purged": h.app.Auditor.PurgeReviewed()})
}

func (h *handlers) listArchived(w http.ResponseWriter, r *http.Request) {
	if h.app.Store == nil {
		writeError(w, http.StatusNotFound, "archive disabled in ephemeral mode")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.app.Store.ListSessions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list archived sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if recs == nil {
		recs = []store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) archivedTranscript(w http.ResponseWriter, r *http.Request) {
	if h.app.Store == nil {
		writeError(w, http.StatusNotFound, "archive disabled in ephemeral mode")
		return
	}
	events, err := h.app.Store.Transcript(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("Failed to read archived transcript")
		writeError(w, http.StatusInternalServerError, "failed to read transcript")
	default:
		writeJSON(w, http.StatusOK, events)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
