package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/genomics-portal/platform/pkg/gateway/middleware"
	"github.com/genomics-portal/platform/pkg/permissions"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const stateCookieName = "portal_oauth_state"

// LoginProvider runs the authorization-code flow against the identity provider.
type LoginProvider interface {
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type AuthHandler struct {
	provider   LoginProvider
	verifier   middleware.TokenValidator
	cookieName string
}

// NewAuthHandler builds the login handlers. provider may be nil, in which case
// only bearer tokens are accepted.
func NewAuthHandler(provider LoginProvider, verifier middleware.TokenValidator, cookieName string) *AuthHandler {
	return &AuthHandler{provider: provider, verifier: verifier, cookieName: cookieName}
}

func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", h.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodGet, http.MethodPost)

	authenticate := middleware.Authenticate(h.verifier, h.cookieName)
	r.Handle("/api/v1/me", authenticate(http.HandlerFunc(h.handleMe))).Methods(http.MethodGet)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "login not configured", http.StatusServiceUnavailable)
		return
	}
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.LoginURL(state), http.StatusFound)
}

func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "login not configured", http.StatusServiceUnavailable)
		return
	}
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid login state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth", MaxAge: -1})

	token, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Log.WithError(err).Warn("authorization code exchange failed")
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}
	claims, err := h.verifier.ValidateToken(r.Context(), token)
	if err != nil {
		logger.Log.WithError(err).Warn("identity provider issued an unusable token")
		http.Error(w, "login failed", http.StatusUnauthorized)
		return
	}

	cookie := &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if claims.ExpiresAt != nil {
		cookie.Expires = claims.ExpiresAt.Time
	}
	http.SetCookie(w, cookie)

	logger.Log.WithField("subject", claims.Subject).Info("user logged in")
	http.Redirect(w, r, claims.Permissions().Landing(), http.StatusFound)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: h.cookieName, Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Subject     string              `json:"subject"`
	Email       string              `json:"email"`
	FirstName   string              `json:"firstName"`
	LastName    string              `json:"lastName"`
	Type        string              `json:"type"`
	Scopes      []string            `json:"scopes"`
	Permissions permissions.Summary `json:"permissions"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := meResponse{
		Subject:     claims.Subject,
		Email:       claims.Context.User.Email,
		FirstName:   claims.Context.User.FirstName,
		LastName:    claims.Context.User.LastName,
		Type:        claims.Context.User.Type,
		Scopes:      claims.Context.Scope,
		Permissions: claims.Permissions().Summary(),
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	writeJSON(w, resp)
}
