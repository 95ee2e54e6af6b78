package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestOIDCLoginURL(t *testing.T) {
	a, err := NewOIDCAuthenticator("https://idp.example.org/oauth/", "portal", "secret", "http://localhost/auth/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := url.Parse(a.LoginURL("state-123"))
	if err != nil {
		t.Fatalf("invalid login url: %v", err)
	}
	if u.Host != "idp.example.org" || u.Path != "/oauth/authorize" {
		t.Fatalf("unexpected login url %s", u)
	}
	q := u.Query()
	if q.Get("state") != "state-123" || q.Get("client_id") != "portal" || !strings.Contains(q.Get("scope"), "openid") {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestOIDCExchangePrefersIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access",
			"token_type":   "Bearer",
			"id_token":     "identity",
		})
	}))
	defer srv.Close()

	a, err := NewOIDCAuthenticator(srv.URL, "portal", "secret", "http://localhost/auth/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, err := a.Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "identity" {
		t.Fatalf("expected id token, got %s", token)
	}
	if _, err := a.Exchange(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestOIDCRequiresConfig(t *testing.T) {
	if _, err := NewOIDCAuthenticator("", "client", "", ""); err == nil {
		t.Fatal("expected error without issuer")
	}
}
