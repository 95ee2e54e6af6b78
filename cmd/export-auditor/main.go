package main

import (
	"context"
	"errors"
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
	"github.com/genomics-portal/platform/pkg/exports"
	"github.com/genomics-portal/platform/pkg/gateway/auth"
	"github.com/genomics-portal/platform/pkg/gateway/middleware"
	"github.com/genomics-portal/platform/pkg/gateway/routes"
	"github.com/genomics-portal/platform/pkg/permissions"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Log.WithError(err).Warn("ignoring .env file")
	}
	cfg := config.Load()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Log.Fatal("KAFKA_BROKERS is required")
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := exports.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate export audit table")
	}

	verifier, err := auth.NewTokenVerifier(cfg.TokenPublicKey, cfg.OIDCIssuer)
	if err != nil {
		logger.Log.WithError(err).Fatal("token verification not configured")
	}

	service := exports.NewService(nil, repo)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaExportTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Consume(ctx, service.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	routes.RegisterOpsRoutes(router)

	program := router.PathPrefix("/api/v1/programs/{shortName}").Subrouter()
	program.Use(middleware.Authenticate(verifier, cfg.TokenCookieName))
	program.Use(middleware.RequireProgramPermission(permissions.Set.IsProgramAdmin))
	routes.NewExportsHandler(repo).Register(program)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.AuditorPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.AuditorPort,
			"topic": cfg.KafkaExportTopic,
		}).Info("Export Auditor started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Export Auditor...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Export Auditor stopped")
}
