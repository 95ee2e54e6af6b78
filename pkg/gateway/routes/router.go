package routes

import (
	"net/http"

	"github.com/genomics-portal/platform/pkg/dictionary"
	"github.com/genomics-portal/platform/pkg/gateway/middleware"
	"github.com/genomics-portal/platform/pkg/permissions"
	"github.com/gorilla/mux"
)

type GatewayOptions struct {
	Verifier   middleware.TokenValidator
	CookieName string
	Login      LoginProvider
	Source     ClinicalSource
	Catalog    dictionary.Catalog
	Audit      ExportRecorder

	AllowedOrigin  string
	RateLimitRPS   int
	RateLimitBurst int
	MaxRequestBody int64
}

// NewGatewayRouter wires every portal route behind the shared middleware.
func NewGatewayRouter(opts GatewayOptions) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	if opts.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}
	if opts.MaxRequestBody > 0 {
		router.Use(middleware.BodyLimit(opts.MaxRequestBody))
	}

	RegisterOpsRoutes(router)
	NewAuthHandler(opts.Login, opts.Verifier, opts.CookieName).Register(router)

	program := router.PathPrefix("/api/v1/programs/{shortName}").Subrouter()
	program.Use(middleware.Authenticate(opts.Verifier, opts.CookieName))
	program.Use(middleware.RequireProgramPermission(permissions.Set.CanReadProgramData))
	NewClinicalHandler(opts.Source, opts.Catalog, opts.Audit).Register(program)

	// Preflight requests match no GET route, so CORS wraps the router.
	return middleware.CORS(opts.AllowedOrigin)(router)
}
