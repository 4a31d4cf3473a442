package router

import (
	"errors"

	"title-escrow/internal/application/escrow"
	"title-escrow/internal/application/funds"
	"title-escrow/internal/application/registry"
	"title-escrow/internal/config"
	"title-escrow/internal/health"
	"title-escrow/internal/infrastructure/database"
	"title-escrow/internal/infrastructure/messaging"
	"title-escrow/internal/infrastructure/metrics"
	escrowhandler "title-escrow/internal/interfaces/handlers/escrow"
	healthhandler "title-escrow/internal/interfaces/handlers/health"
	"title-escrow/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp wires storage, collaborators, the ledger and every route. Redis and NATS are
// optional: without Redis the listing lock is in-process only, without NATS events are only
// written to the audit table.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("database url is not configured")
	}
	roles, err := cfg.Roles()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, nil, err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opt)
	}

	reg := &registry.Service{DB: db, Operator: roles.Custodian}
	fs := &funds.Service{DB: db, Custody: roles.Custodian}
	ledger, err := escrow.NewLedger(db, roles, reg, fs)
	if err != nil {
		return nil, nil, nil, err
	}
	if rdb != nil {
		ledger.SetLocker(escrow.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait))
	} else {
		ledger.SetLocker(escrow.NewLocalLocker(cfg.LockWait))
	}

	mm := metrics.NewManager(cfg.MetricsNamespace)
	ledger.SetObserver(mm)

	extra := map[string]health.DBPinger{}
	var publisher *messaging.Publisher
	if cfg.NATSURL != "" {
		nc, err := messaging.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, nil, err
		}
		publisher = messaging.NewPublisher(nc)
		ledger.SetPublisher(publisher)
		extra["nats"] = publisher
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})
	app.Hooks().OnShutdown(func() error {
		if publisher != nil {
			publisher.Close()
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("close redis")
			}
		}
		return nil
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.CORSAllowedSuffix,
		AllowLocalhost: !cfg.IsProduction(),
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.Actor())
	app.Use(middleware.RouteLogger())
	app.Use(mm.Middleware())
	app.Use(middleware.HealthMarker(rdb))

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &gormDBPinger{db: db},
		Extra:          extra,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", mm.Handler())

	eh := &escrowhandler.Handlers{Ledger: ledger, Registry: reg, Funds: fs}
	eh.Mount(app)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Route not found")
	})

	log.Info().
		Str("env", cfg.Env).
		Bool("redis", rdb != nil).
		Bool("nats", publisher != nil).
		Str("custodian", roles.Custodian.String()).
		Msg("escrow app created")
	return app, db, rdb, nil
}
