// Command convex-versioned-assets runs the versioned asset store: a
// gin HTTP server over the operation surface of SPEC_FULL.md §6, backed
// by Postgres for the catalog and either local disk or R2 for bytes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/api"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/auth"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/changelogfeed"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/config"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/db"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/jobs"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/server"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

// Version, SourceCommit and SourceRef are set via -ldflags at build
// time; they keep the placeholder values below in a source checkout.
var (
	Version      = "dev"
	SourceCommit = "unknown"
	SourceRef    = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "convex-versioned-assets",
	Short: "Versioned asset store server",
	Long:  "A server-side system that organizes binary files into a folder tree, keeps full version history per asset, and serves the published bytes over HTTP.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("convex-versioned-assets\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Source Commit: %s\n", SourceCommit)
		fmt.Printf("Source Ref: %s\n", SourceRef)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	conn, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	logrus.Info("running database migrations")
	if err := db.RunMigrations(ctx, conn.DB()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logrus.Info("migrations complete")
	return nil
}

// runServe wires every component in dependency order: database pool,
// storage registry, catalog repository, changelog hub (wired into the
// repository after construction to avoid an import cycle, see
// catalog.Repository.SetNotifier), auth middleware, background jobs,
// the api.Service assembly root, and finally the HTTP server.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	conn, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(ctx, conn.DB()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	backends, err := storage.NewRegistry(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backends: %w", err)
	}

	repo := catalog.NewRepository(conn.Pool(), backends)
	feed := changelogfeed.New()
	repo.SetNotifier(feed)

	authMw := auth.NewMiddleware(cfg.AuthCapability())

	jobSvc := jobs.NewService(cfg.JobsCapability())
	jobHandlers := jobs.NewHandlers(repo, backends)

	sweepTask := jobs.NewSweepExpiredIntentsTask()
	if err := jobSvc.RegisterPeriodic(cronEvery(cfg.Jobs.SweepInterval), sweepTask); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	migrateTask, err := jobs.NewMigrateToR2BatchTask(cfg.Jobs.MigrateBatchSize)
	if err != nil {
		return fmt.Errorf("failed to build migrate-to-r2 task: %w", err)
	}
	if err := jobSvc.RegisterPeriodic(cronEvery(cfg.Jobs.MigrateInterval), migrateTask); err != nil {
		return fmt.Errorf("failed to register migrate-to-r2 job: %w", err)
	}

	// asynq's Server.Start/Scheduler.Start (wrapped by jobs.Service.Start)
	// launch their worker goroutines and return immediately; they do not
	// block like Server.Run does.
	if err := jobSvc.Start(jobHandlers.Mux()); err != nil {
		return fmt.Errorf("failed to start job server: %w", err)
	}
	defer jobSvc.Stop()

	svc := api.NewService(repo, backends, feed, jobSvc, prometheus.DefaultRegisterer)

	srv := server.New(server.Config{
		Address:            cfg.Server.Address,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        cfg.Server.IdleTimeout,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		CORSEnabled:        cfg.Server.CORSEnabled,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestLogging:     cfg.Server.RequestLogging,
		MetricsEnabled:     cfg.Server.MetricsEnabled,
		MetricsPath:        cfg.Server.MetricsPath,
		HealthCheckEnabled: cfg.Server.HealthCheckEnabled,
		HealthCheckPath:    cfg.Server.HealthCheckPath,
	}, svc, authMw)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logrus.Info("shutting down")
	case err := <-serverErrCh:
		if err != nil {
			logrus.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("failed to shut down http server gracefully")
	}

	return nil
}

// cronEvery renders d as a "@every" asynq/robfig cron spec, the
// simplest way to turn a config-supplied interval into the periodic
// schedules RegisterPeriodic expects.
func cronEvery(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}
