package config

import (
	"os"
	"strings"
	"time"

	"title-escrow/internal/application/escrow"
	"title-escrow/internal/domain"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env               string
	Port              string
	DatabaseURL       string // postgres DSN, or sqlite:<path> / :memory:
	RedisURL          string // optional; enables the shared listing lock and request stats
	NATSURL           string // optional; enables listing event publishing
	Seller            string
	Inspector         string
	Lender            string
	Custodian         string // registry operator and funds custody account (default "escrow")
	Registry          string // identity of the asset registry, reported by /roles
	LockWait          time.Duration
	LockTTL           time.Duration
	LogLevel          string
	HealthAdminKey    string
	MetricsNamespace  string
	CORSAllowedSuffix string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("NODE_ENV")
	if env == "" {
		env = viper.GetString("APP_ENV")
	}
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:               env,
		Port:              port,
		DatabaseURL:       dbURL,
		RedisURL:          viper.GetString("REDIS_URL"),
		NATSURL:           viper.GetString("NATS_URL"),
		Seller:            viper.GetString("ESCROW_SELLER"),
		Inspector:         viper.GetString("ESCROW_INSPECTOR"),
		Lender:            viper.GetString("ESCROW_LENDER"),
		Custodian:         withDefault(viper.GetString("ESCROW_CUSTODIAN"), "escrow"),
		Registry:          withDefault(viper.GetString("ESCROW_REGISTRY"), "title-registry"),
		LockWait:          duration("LOCK_WAIT", escrow.DefaultLockWait),
		LockTTL:           duration("LOCK_TTL", 30*time.Second),
		LogLevel:          withDefault(viper.GetString("LOG_LEVEL"), "info"),
		HealthAdminKey:    viper.GetString("HEALTH_ADMIN_KEY"),
		MetricsNamespace:  withDefault(viper.GetString("METRICS_NAMESPACE"), "title_escrow"),
		CORSAllowedSuffix: viper.GetString("CORS_ALLOWED_SUFFIX"),
	}, nil
}

// Roles returns the normalized deployment roles, validated.
func (c *Config) Roles() (escrow.Roles, error) {
	roles := escrow.Roles{
		Seller:    domain.NewIdentity(c.Seller),
		Inspector: domain.NewIdentity(c.Inspector),
		Lender:    domain.NewIdentity(c.Lender),
		Custodian: domain.NewIdentity(c.Custodian),
		Registry:  domain.NewIdentity(c.Registry),
	}
	if err := roles.Validate(); err != nil {
		return escrow.Roles{}, err
	}
	return roles, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func withDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// duration reads a Go duration ("750ms", "5s"); unset or unparsable values fall back to def.
func duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
