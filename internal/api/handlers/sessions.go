package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/data"
)

// SessionsHandler serves stored session records to the dashboard.
type SessionsHandler struct {
	repo   *data.SessionsRepository
	logger zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(repo *data.SessionsRepository, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		repo:   repo,
		logger: logger,
	}
}

// List returns session summaries, filterable by ?date= and ?symbol=.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	sessions, err := h.repo.ListSessions(r.Context(), q.Get("date"), q.Get("symbol"), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns one full session graph by id.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")

	sc, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("Failed to load session")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sc)
}
