package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/quizblitz/live-server/internal/config"
	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/middleware"
	"github.com/quizblitz/live-server/internal/registry"
	"github.com/quizblitz/live-server/internal/service"
	"github.com/quizblitz/live-server/internal/util"
)

type SessionHandler struct {
	hosting  *service.HostingService
	sessions *registry.Registry
}

func NewSessionHandler(hosting *service.HostingService, sessions *registry.Registry) *SessionHandler {
	return &SessionHandler{
		hosting:  hosting,
		sessions: sessions,
	}
}

// POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	hostID := middleware.GetHostID(r.Context())
	if hostID == "" {
		writeError(w, apperrors.Unauthorized("Missing host identity"))
		return
	}

	var input service.StartHostingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	summary, err := h.hosting.StartHosting(r.Context(), hostID, input)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Str("hostId", hostID).Msg("failed to start hosting")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// GET /v1/sessions/{code}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !util.IsValidJoinCode(code, config.JoinCodeDigits) {
		writeError(w, apperrors.InvalidInput("code", "must be a 6 digit join code"))
		return
	}

	session, ok := h.sessions.Lookup(code)
	if !ok {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	summary, err := session.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GET /v1/history
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	hostID := middleware.GetHostID(r.Context())
	if hostID == "" {
		writeError(w, apperrors.Unauthorized("Missing host identity"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, apperrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.hosting.History(r.Context(), hostID, limit)
	if err != nil {
		log.Error().Err(err).Str("hostId", hostID).Msg("failed to list history")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"games": records,
	})
}
