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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mal33k-eden/pms-agent-api/internal/config"
	"github.com/mal33k-eden/pms-agent-api/internal/domain/apicache"
	"github.com/mal33k-eden/pms-agent-api/internal/domain/drug"
	"github.com/mal33k-eden/pms-agent-api/internal/domain/enrich"
	"github.com/mal33k-eden/pms-agent-api/internal/domain/queue"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/auth"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/middleware"
	"github.com/mal33k-eden/pms-agent-api/internal/platform/sources"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pms-agent",
		Short: "Medication safety API for pregnancy and breastfeeding",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background enrichment worker without the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a starter catalog of common drugs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a database snapshot to roll back.")
			return nil
		},
	})

	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func safetyTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.SafetyTTLDays) * 24 * time.Hour
}

func lowConfidenceTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.LowConfidenceTTLDays) * 24 * time.Hour
}

// app bundles the wired HTTP server and background worker so serve and
// worker commands share one construction path.
type app struct {
	e      *echo.Echo
	worker *enrich.Worker
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.Audit(logger))

	// API groups
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Lookup endpoints are anonymous; the admin group carries auth.
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))

	admin := e.Group("/api/v1")
	admin.Use(middleware.RateLimit(rateLimitCfg))
	if cfg.IsDev() {
		admin.Use(auth.DevAuthMiddleware())
	} else {
		admin.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret)}))
	}
	admin.Use(auth.RequireRole("admin"))

	// Drug catalog and safety history
	drugSvc := drug.NewService(drug.NewRepo(pool))
	drugSvc.SetTTLs(safetyTTL(cfg), lowConfidenceTTL(cfg))
	drug.NewHandler(drugSvc).RegisterRoutes(api, admin)

	// Source response cache
	cacheSvc := apicache.NewService(apicache.NewRepo(pool))
	cacheSvc.SetTTL(time.Duration(cfg.SourceCacheTTLHours) * time.Hour)
	apicache.NewHandler(cacheSvc).RegisterRoutes(admin)

	// Processing queue
	queueSvc := queue.NewService(queue.NewRepo(pool))
	queue.NewHandler(queueSvc).RegisterRoutes(admin)

	// External sources and the enrichment pipeline
	client := sources.NewClient(cacheSvc, logger)
	client.SetBaseURLs(cfg.FDAAPIURL, cfg.DailyMedAPIURL, cfg.PubMedAPIURL)
	enricher := enrich.NewEnricher(drugSvc, client, pool, logger)
	enrich.NewHandler(enricher, drugSvc, queueSvc, logger).RegisterRoutes(api)

	worker := enrich.NewWorker(queueSvc, enricher, drugSvc, cacheSvc, logger)
	worker.SetIntervals(
		time.Duration(cfg.WorkerPollSeconds)*time.Second,
		time.Duration(cfg.CleanupIntervalHours)*time.Hour,
	)

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "PMS Agent API",
			"version": version,
		})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	return &app{e: e, worker: worker}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := buildApp(cfg, pool, logger)

	// Embedded worker
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	if cfg.WorkerEnabled {
		go func() {
			if err := a.worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("worker exited")
			}
		}()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runWorker() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := buildApp(cfg, pool, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down worker")
		cancel()
	}()

	if err := a.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runSeed() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := drug.NewService(drug.NewRepo(pool))
	svc.SetTTLs(safetyTTL(cfg), lowConfidenceTTL(cfg))

	n, err := drug.Seed(ctx, svc)
	if err != nil {
		return err
	}
	logger.Info().Int("drugs", n).Msg("seed data inserted")
	fmt.Printf("Seeded %d drugs with curated safety data.\n", n)
	return nil
}
