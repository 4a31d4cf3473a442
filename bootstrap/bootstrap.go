package bootstrap

import (
	"os"
	"strings"
	"time"

	"title-escrow/internal/config"
	"title-escrow/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Runtime is everything main needs to serve and shut down.
type Runtime struct {
	Config *config.Config
	App    *fiber.App
	DB     *gorm.DB
	Redis  *redis.Client
}

// New loads config, configures the global logger and builds the Fiber app.
func New() (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ConfigureLogger(cfg)
	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	return &Runtime{Config: cfg, App: app, DB: db, Redis: rdb}, nil
}

// ConfigureLogger sets the zerolog level from LOG_LEVEL. Outside production logs go to a console writer.
func ConfigureLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
