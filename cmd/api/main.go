package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"title-escrow/bootstrap"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rt, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	// Verify connections before serving
	sqlDB, err := rt.DB.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("database: get DB")
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Msg("database connected")
	if rt.Redis != nil {
		if err := rt.Redis.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("redis connected")
	}

	port := rt.Config.Port
	go func() {
		log.Info().Str("port", port).Msgf("health check: http://localhost:%s/health/json", port)
		if err := rt.App.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := rt.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("close database")
	}
}
