package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/identity"
	"github.com/rafid/crosspost/internal/platform/instagram"
)

const stateCookie = "oauth_state"

// AuthHandler serves login, registration, logout, the current-identity
// endpoint, and the OAuth redirect/callback pair.
type AuthHandler struct {
	identity  *identity.Synchronizer
	instagram *instagram.Exchanger
	logger    *slog.Logger
}

func NewAuthHandler(sync *identity.Synchronizer, ig *instagram.Exchanger, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: sync, instagram: ig, logger: logger}
}

type credentialsRequest struct {
	Name     string `json:"name"` // registration only
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin authenticates with email and password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperror.ValidationFailed("credentials", "email and password are required"))
		return
	}

	user, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperror.ValidationFailed("credentials", "email and password are required"))
		return
	}

	user, err := h.identity.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleLogout ends the session. POST keeps it out of reach of prefetching
// and cross-site GETs.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// identityResponse is the wire shape of the current identity snapshot.
type identityResponse struct {
	State string `json:"state"`
	User  any    `json:"user,omitempty"`
}

// HandleMe reports the current identity snapshot.
//
// HTTP: GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	snap := h.identity.Current()
	resp := identityResponse{State: snap.State.String()}
	if snap.User != nil {
		resp.User = snap.User
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleOAuthStart sends the browser to the named provider's authorization
// page. The random state lands in a short-lived HttpOnly cookie and is
// checked again on callback.
//
// HTTP: GET /auth/{provider}
func (h *AuthHandler) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	state := xid.New().String()

	url, err := h.identity.BeginOAuth(name, state)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes an OAuth round trip. A callback carrying
// source=instagram is a platform-token exchange, not a login: the code is
// traded for an access token and the user's session is untouched.
//
// HTTP: GET /auth/callback?code=xxx&state=yyy[&source=instagram]
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	if r.URL.Query().Get("source") == "instagram" {
		if _, err := h.instagram.Exchange(r.Context(), code); err != nil {
			h.logger.Warn("instagram exchange failed", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		http.Redirect(w, r, "/?instagram=connected", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("oauth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "missing OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "OAuth state mismatch"))
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	user, err := h.identity.CompleteOAuthCallback(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via oauth", slog.String("userID", user.ID))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
