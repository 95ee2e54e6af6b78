package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genomics-portal/platform/pkg/common/config"
	"github.com/genomics-portal/platform/pkg/common/database"
	"github.com/genomics-portal/platform/pkg/common/kafka"
	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/genomics-portal/platform/pkg/dictionary"
	"github.com/genomics-portal/platform/pkg/exports"
	"github.com/genomics-portal/platform/pkg/gateway/auth"
	"github.com/genomics-portal/platform/pkg/gateway/graphql"
	"github.com/genomics-portal/platform/pkg/gateway/httpclient"
	"github.com/genomics-portal/platform/pkg/gateway/routes"
)

func main() {
	logger.Init()
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Log.WithError(err).Warn("ignoring .env file")
	}
	cfg := config.Load()

	verifier, err := auth.NewTokenVerifier(cfg.TokenPublicKey, cfg.OIDCIssuer)
	if err != nil {
		logger.Log.WithError(err).Fatal("token verification not configured")
	}

	var login routes.LoginProvider
	oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC login not configured, accepting bearer tokens only")
	} else {
		login = oidcAuth
	}

	catalog, err := dictionary.Load(cfg.DictionaryPath)
	if err != nil {
		logger.Log.WithError(err).Warn("entity dictionary not loaded, using defaults")
		catalog = dictionary.DefaultCatalog()
	}

	clientOpts := []graphql.Option{graphql.WithRetry(cfg.GatewayRetryAttempts, 200*time.Millisecond)}
	if redisClient := database.GetRedis(cfg); redisClient != nil {
		clientOpts = append(clientOpts, graphql.WithCache(graphql.NewRedisCache(redisClient), cfg.QueryCacheTTL))
		defer database.CloseRedis()
	}
	gatewayClient := graphql.NewClient(cfg.GatewayGraphQLURL, httpclient.New(cfg.GatewayRequestTimeout), clientOpts...)

	var publisher exports.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaExportTopic)
		defer producer.Close()
		publisher = producer
	}
	var store exports.Store
	if cfg.ExportAuditDB {
		db, err := database.GetPostgres(cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("export audit database unavailable")
		} else {
			repo := exports.NewRepository(db)
			if err := repo.AutoMigrate(); err != nil {
				logger.Log.WithError(err).Fatal("failed to migrate export audit table")
			}
			store = repo
			defer database.ClosePostgres()
		}
	}

	handler := routes.NewGatewayRouter(routes.GatewayOptions{
		Verifier:       verifier,
		CookieName:     cfg.TokenCookieName,
		Login:          login,
		Source:         gatewayClient,
		Catalog:        catalog,
		Audit:          exports.NewService(publisher, store),
		AllowedOrigin:  cfg.AllowedOrigin,
		RateLimitRPS:   cfg.GatewayRateLimitRPS,
		RateLimitBurst: cfg.GatewayRateLimitBurst,
		MaxRequestBody: cfg.MaxRequestBody,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"upstream": cfg.GatewayGraphQLURL,
			"entities": len(catalog.Entities),
		}).Info("Portal Gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Portal Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Portal Gateway stopped")
}
