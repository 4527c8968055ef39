// Package main is the entry point for the Kafka portal server binary.
// It dispatches three subcommands — serve, migrate, and version — via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration on
// startup so freshly deployed containers never need a separate migration step.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/api"
	"github.com/kafka-portal/kafka-portal/internal/auth"
	"github.com/kafka-portal/kafka-portal/internal/config"
	"github.com/kafka-portal/kafka-portal/internal/db"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
	"github.com/kafka-portal/kafka-portal/internal/kafka"
	"github.com/kafka-portal/kafka-portal/internal/services"
	"github.com/kafka-portal/kafka-portal/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Kafka Portal v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log
	// output uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Validate JWT secret configuration (fails in production if not set)
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// Begin exporting DB pool statistics to Prometheus.
	telemetry.StartDBStatsCollector(database)

	// Run migrations automatically on startup
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		slog.Warn("failed to read migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", schemaVersion, "dirty", dirty)
	}

	// Connect to the broker cluster's admin API. Connection failures here are
	// fatal: a portal that cannot ever reach its brokers is misconfigured.
	// Transient broker outages after startup only degrade readiness.
	provisioner, err := kafka.NewClusterAdmin(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka admin client: %w", err)
	}
	defer provisioner.Close()

	// First-run bootstrap: while the instance has no admin, keep a one-time
	// token available and print it to the logs. Only its bcrypt hash is stored.
	if err := handleBootstrapToken(database); err != nil {
		slog.Warn("bootstrap token handling failed", "error", err)
	}

	// Prometheus metrics are served on a dedicated port so the scrape path is
	// not reachable through the public API ingress.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices := api.NewRouter(cfg, database, provisioner, version)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"kafka_brokers", cfg.Kafka.BootstrapServers)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop rate limiter goroutines after in-flight requests drain
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// handleBootstrapToken generates the one-time admin bootstrap token when the
// instance has no admin yet. The plaintext token appears in the logs exactly
// once; restarts reuse the stored hash and print a reminder instead.
func handleBootstrapToken(database *sql.DB) error {
	ctx := context.Background()

	userRepo := repositories.NewUserRepository(database)
	settingsRepo := repositories.NewSettingsRepository(database)
	auditRepo := repositories.NewAuditRepository(database)
	bootstrap := services.NewBootstrapService(userRepo, settingsRepo, services.NewAuditRecorder(auditRepo, nil))

	token, err := bootstrap.EnsureToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	log.Println("")
	log.Println("══════════════════════════════════════════════════════════════════")
	log.Println("  ADMIN BOOTSTRAP REQUIRED")
	log.Println("")
	log.Printf("  Bootstrap Token: %s", token)
	log.Println("")
	log.Println("  Log in with your directory credentials, then claim admin with:")
	log.Println("    POST /api/v1/bootstrap/claim-admin  {\"token\": \"<token>\"}")
	log.Println("")
	log.Println("  This token is single-use and is invalidated after the claim.")
	log.Println("══════════════════════════════════════════════════════════════════")
	log.Println("")

	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", schemaVersion, dirty)
	return nil
}
