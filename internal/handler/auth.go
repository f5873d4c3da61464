package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"aichat/internal/auth"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
	"aichat/internal/httputil"
)

// AuthHandler serves login, logout and session introspection.
type AuthHandler struct {
	users  repositories.UserRepository
	issuer *auth.TokenIssuer
	logger *slog.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users repositories.UserRepository, issuer *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	User *models.User `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "username and password are required")
		return
	}

	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Same response as a wrong password so usernames cannot be probed.
			httputil.RespondError(w, http.StatusUnauthorized, domain.CodeInvalidCredentials, "incorrect username or password")
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		httputil.RespondError(w, http.StatusUnauthorized, domain.CodeInvalidCredentials, "incorrect username or password")
		return
	}

	token, err := h.issuer.Sign(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		h.logger.Error("token signing failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, domain.CodeInternal, "failed to create session")
		return
	}

	http.SetCookie(w, h.issuer.SessionCookie(token))
	httputil.RespondJSON(w, http.StatusOK, userResponse{User: user})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.issuer.ClearCookie())
	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, userResponse{User: httputil.GetUser(r)})
}
