/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the plan amendment back-office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML, .env, environment, flags)
  2. Open the SQLite or PostgreSQL store
  3. Start the change feed hub
  4. Create API handler, authenticator and router
  5. Start the week scheduler
  6. Optionally load a demo scenario
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    YAML config file (optional)
  -port      HTTP server port, overrides config
  -db        Database DSN, overrides config
             SQLite: file path or ":memory:"; Postgres: postgres://...
  -driver    "sqlite" or "postgres", overrides config
  -scenario  Demo scenario to load at startup (fresh-week, mid-week)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and disconnect feed clients
  4. Close database connection

EXAMPLES:
  ./server -db="./data/backoffice.db" -scenario=mid-week
  DATABASE_DRIVER=postgres DATABASE_URL=postgres://localhost/backoffice ./server

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - store/sqlite, store/postgres: Database implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/backoffice/api"
	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/planning"
	"github.com/warp/backoffice/store/postgres"
	"github.com/warp/backoffice/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dsn := flag.String("db", "", "Database DSN")
	driver := flag.String("driver", "", "Database driver (sqlite or postgres)")
	scenario := flag.String("scenario", "", "Demo scenario to load at startup")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	repo, closeRepo, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to initialize database")
	}
	defer closeRepo()

	hub := api.NewHub(cfg.FeedDebounce, cfg.CORSOrigins, log.With().Str("component", "feed").Logger())

	handler := api.NewHandler(repo, hub, api.Options{
		CacheTTL:            cfg.CacheTTL,
		PageSize:            cfg.PageSize,
		EmailDomain:         cfg.EmailDomain,
		UploadRatePerMinute: cfg.UploadRatePerMinute,
		UploadBurst:         cfg.UploadBurst,
		Scenarios:           cfg.Auth.DevHeader,
	}, log)

	auth, err := api.NewAuthenticator(repo, cfg.Auth, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure authentication")
	}
	if cfg.Auth.DevHeader {
		log.Warn().Str("header", api.DevUserHeader).Msg("dev header authentication enabled")
	}

	router := api.NewRouter(handler, auth, cfg.CORSOrigins)

	scheduler := api.NewWeekScheduler(handler.Weeks, log.With().Str("component", "scheduler").Logger())
	if cfg.WeekCheckInterval > 0 {
		scheduler.CheckInterval = cfg.WeekCheckInterval
	}
	scheduler.Start()
	defer scheduler.Stop()

	if *scenario != "" {
		week, err := handler.RunScenario(ctx, *scenario)
		if err != nil {
			log.Fatal().Err(err).Str("scenario", *scenario).Msg("failed to load scenario")
		}
		log.Info().Str("scenario", *scenario).Str("week", week.Reference).Msg("demo data ready")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.Port).Str("driver", cfg.Database.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		return
	}
	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, db config.DatabaseConfig) (planning.TxRepository, func(), error) {
	switch db.Driver {
	case "postgres":
		s, err := postgres.New(ctx, db.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
