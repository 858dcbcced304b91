package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/config"
	"github.com/arcadeparty/arcade-backend/internal/httpapi"
	"github.com/arcadeparty/arcade-backend/internal/mirror"
	"github.com/arcadeparty/arcade-backend/internal/registry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.AppEnv == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	// The mirror is best-effort by contract: without a database (or with a
	// broken one) gameplay runs fine, only durable reads go away.
	var rec mirror.Recorder = mirror.Nop{}
	var querier httpapi.LeaderboardQuerier
	if cfg.DatabaseURL != "" {
		m, err := mirror.Open(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("persistence mirror disabled", zap.Error(err))
		} else {
			defer m.Stop()
			rec = m
			querier = m
		}
	} else {
		logger.Info("no DATABASE_URL set, persistence mirror disabled")
	}

	reg := registry.New(context.Background(), registry.Config{
		Log:           logger,
		Recorder:      rec,
		GhostTTL:      cfg.GhostTTL,
		SweepInterval: cfg.GhostSweepInterval,
		GCInterval:    cfg.SessionGCInterval,
		GCAge:         cfg.SessionGCAge,
	})

	handler := httpapi.SetupRoutes(reg, querier, logger)

	logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
