package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/auth"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
)

// AuthHandler serves token issuance for the dashboard.
type AuthHandler struct {
	jwt    *auth.JWTService
	cfg    config.AuthConfig
	logger zerolog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwt *auth.JWTService, cfg config.AuthConfig, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		jwt:    jwt,
		cfg:    cfg,
		logger: logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges admin credentials for a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != h.cfg.AdminUser || req.Password != h.cfg.AdminPassword {
		h.logger.Warn().Str("username", req.Username).Msg("Failed login attempt")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(req.Username, "admin")
	if err != nil {
		h.logger.Error().Err(err).Msg("Token generation failed")
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}
