package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/genomics-portal/platform/pkg/gateway/auth"
	"github.com/genomics-portal/platform/pkg/gateway/httpclient"
	"github.com/genomics-portal/platform/pkg/permissions"
	"github.com/gorilla/mux"
)

type stubValidator struct {
	tokens map[string]*auth.Claims
}

func (s stubValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if claims, ok := s.tokens[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func claimsWithScopes(scopes ...string) *auth.Claims {
	c := &auth.Claims{}
	c.Subject = "user-1"
	c.Context.Scope = scopes
	return c
}

func protectedRouter(v TokenValidator) *mux.Router {
	r := mux.NewRouter()
	program := r.PathPrefix("/programs/{shortName}").Subrouter()
	program.Use(Authenticate(v, "portal_token"))
	program.Use(RequireProgramPermission(permissions.Set.CanReadProgramData))
	program.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(TokenFromContext(r.Context())))
	})
	return r
}

func TestAuthenticateAndProgramPermission(t *testing.T) {
	v := stubValidator{tokens: map[string]*auth.Claims{
		"reader":   claimsWithScopes("PROGRAMDATA-TEST-CA.READ"),
		"stranger": claimsWithScopes("PROGRAMDATA-OTHER-CA.READ"),
		"dcc":      claimsWithScopes("PROGRAMSERVICE.WRITE"),
	}}
	router := protectedRouter(v)

	cases := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{name: "missing token", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "program reader", header: "Bearer reader", status: http.StatusOK},
		{name: "other program", header: "Bearer stranger", status: http.StatusForbidden},
		{name: "dcc member", header: "Bearer dcc", status: http.StatusOK},
		{name: "cookie token", cookie: "reader", status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/programs/TEST-CA/data", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "portal_token", Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestAuthenticateForwardsRawToken(t *testing.T) {
	v := stubValidator{tokens: map[string]*auth.Claims{"reader": claimsWithScopes("PROGRAMDATA-TEST-CA.READ")}}
	req := httptest.NewRequest(http.MethodGet, "/programs/TEST-CA/data", nil)
	req.Header.Set("Authorization", "Bearer reader")
	rec := httptest.NewRecorder()
	protectedRouter(v).ServeHTTP(rec, req)
	if rec.Body.String() != "reader" {
		t.Fatalf("expected raw token in context, got %q", rec.Body.String())
	}
}

func TestLoggingPropagatesRequestID(t *testing.T) {
	var seen string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpclient.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || seen == "abc" {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS("https://portal.example.org")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach handler")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://portal.example.org" {
		t.Fatalf("unexpected origin header %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
