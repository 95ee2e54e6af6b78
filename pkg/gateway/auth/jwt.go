package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/genomics-portal/platform/pkg/permissions"
	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenEmpty = errors.New("token empty")

type TokenUser struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Type      string `json:"type"`
	Status    string `json:"status"`
}

type TokenContext struct {
	Scope []string  `json:"scope"`
	User  TokenUser `json:"user"`
}

// Claims is the payload of an identity-provider token.
type Claims struct {
	Context TokenContext `json:"context"`
	jwt.RegisteredClaims
}

func (c *Claims) Permissions() permissions.Set {
	return permissions.New(c.Context.Scope)
}

// TokenVerifier checks RS256 tokens issued by the identity provider.
type TokenVerifier struct {
	key     *rsa.PublicKey
	issuer  string
	nowFunc func() time.Time
}

func NewTokenVerifier(publicKeyPEM, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("token public key not configured")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parsing token public key: %w", err)
	}
	return &TokenVerifier{key: key, issuer: issuer, nowFunc: time.Now}, nil
}

func (v *TokenVerifier) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.nowFunc),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("validating token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
