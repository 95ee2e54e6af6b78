package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/genomics-portal/platform/pkg/common/logger"
	"golang.org/x/oauth2"
)

type OIDCAuthenticator struct {
	config *oauth2.Config
	issuer string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret, redirectURL string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}
	issuer = strings.TrimRight(issuer, "/")

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config: config,
		issuer: issuer,
	}, nil
}

func (a *OIDCAuthenticator) Issuer() string {
	return a.issuer
}

// LoginURL is the provider URL the browser is redirected to.
func (a *OIDCAuthenticator) LoginURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for the portal token. The id_token is
// preferred; providers that issue only access tokens fall back to those.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("authorization code is empty")
	}
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		return idToken, nil
	}
	logger.Log.Debug("identity provider returned no id_token, using access token")
	return token.AccessToken, nil
}
