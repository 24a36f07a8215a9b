package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/data"
)

// WatchlistHandler serves watchlist CRUD.
type WatchlistHandler struct {
	repo   *data.WatchlistRepository
	logger zerolog.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(repo *data.WatchlistRepository, logger zerolog.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		repo:   repo,
		logger: logger,
	}
}

// List returns all tracked symbols.
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list watchlist")
		writeError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"watchlist": entries,
		"count":     len(entries),
	})
}

type addSymbolRequest struct {
	Symbol string `json:"symbol"`
	Note   string `json:"note"`
}

// Add upserts one symbol.
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	if err := h.repo.Add(r.Context(), req.Symbol, req.Note); err != nil {
		h.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to add watchlist entry")
		writeError(w, http.StatusInternalServerError, "failed to add symbol")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"symbol": strings.ToUpper(req.Symbol)})
}

// Remove deletes one symbol.
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := h.repo.Remove(r.Context(), symbol); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
