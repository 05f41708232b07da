package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"station-records/internal/auth"
	"station-records/internal/config"
	"station-records/internal/db"
	"station-records/internal/observability"
)

// Release is stamped at build time with -ldflags "-X station-records/app.Release=...".
var Release = "dev"

const startupTimeout = 30 * time.Second

// Options controls Build. RunMigrations forces a schema upgrade; without it
// Build still upgrades when RUN_MIGRATIONS_ON_STARTUP is set.
type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

func (o Options) migrates(cfg config.Config) bool {
	return o.RunMigrations || cfg.RunMigrationsOnStartup
}

type Runtime struct {
	Addr    string
	Handler http.Handler
	Close   func() error
}

// Core holds what both the HTTP runtime and the admin CLI need: a verified
// database pool, the guard and the migration engine.
type Core struct {
	Config   config.Config
	Logger   *observability.Logger
	DB       *sql.DB
	Records  *sqlx.DB
	AuthRepo *auth.Repository
	Auth     *auth.Service
	Migrator *db.Engine
}

// Open loads the configuration and connects to Postgres. It does not touch
// the schema.
func Open(ctx context.Context, options Options) (*Core, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger().With(map[string]any{"env": cfg.AppEnv})

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	core, err := newCore(cfg, logger, database)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return core, nil
}

func newCore(cfg config.Config, logger *observability.Logger, database *sql.DB) (*Core, error) {
	records := sqlx.NewDb(database, "pgx")

	authRepo := auth.NewRepository(records)
	authService := auth.NewService(authRepo, authRepo, cfg.JWTSecret, logger)
	authService.WithSecurityConfig(cfg.LoginMaxAttempts, cfg.AccessTokenTTL, auth.PINPolicy{
		MinLength:  cfg.PINMinLength,
		MaxLength:  cfg.PINMaxLength,
		DigitsOnly: cfg.PINDigitsOnly,
		HashCost:   cfg.PINHashCost,
	})

	seed, err := db.LoadSeed(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	migrator, err := db.NewEngine(
		db.NewPostgresStore(database),
		db.Steps(seed.WithDefaultPIN(cfg.AdminPIN), authService.HashPIN),
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Core{
		Config:   cfg,
		Logger:   logger,
		DB:       database,
		Records:  records,
		AuthRepo: authRepo,
		Auth:     authService,
		Migrator: migrator,
	}, nil
}

// Migrate brings the schema to the latest version.
func (c *Core) Migrate(ctx context.Context) error {
	version, err := c.Migrator.Upgrade(ctx)
	if err != nil {
		var stepErr *db.StepError
		if errors.As(err, &stepErr) {
			observability.CaptureError(err, map[string]string{
				"component":    "migrations",
				"step_version": fmt.Sprint(stepErr.Version),
			})
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	c.Logger.Info("schema_ready", map[string]any{"version": version})
	return nil
}

func (c *Core) Close() error {
	observability.FlushSentry()
	return c.DB.Close()
}

// Build assembles the HTTP runtime. When migrations are enabled the schema is
// upgraded before any handler exists and a failure aborts the build.
func Build(options Options) (*Runtime, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	core, err := Open(ctx, options)
	if err != nil {
		return nil, err
	}

	if options.migrates(core.Config) {
		if err := core.Migrate(ctx); err != nil {
			_ = core.Close()
			return nil, err
		}
	}

	backend, closeBackend, err := limitBackend(core.Config)
	if err != nil {
		_ = core.Close()
		return nil, err
	}

	handler := newHandler(core, auth.NewLoginRateLimiter(backend, core.Logger))

	return &Runtime{
		Addr:    core.Config.Addr(),
		Handler: handler,
		Close: func() error {
			closeBackend()
			return core.Close()
		},
	}, nil
}

// limitBackend shares login windows through Redis when REDIS_URL is set and
// falls back to in-process buckets otherwise.
func limitBackend(cfg config.Config) (auth.LimitBackend, func(), error) {
	if cfg.RedisURL == "" {
		return auth.NewMemoryLimitBackend(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow), func() {}, nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	backend := auth.NewRedisLimitBackend(client, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
	return backend, func() { _ = client.Close() }, nil
}
