package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaiya-app/gaiya-cloud/internal/app"
	"github.com/gaiya-app/gaiya-cloud/internal/config"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := newRootCmd().ExecuteContext(ctx); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var port int
	var sweeper bool

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cfgPath, port)
		if err != nil {
			return err
		}
		return app.RunServer(cmd.Context(), cfg, app.ServerOptions{Sweeper: sweeper})
	}

	root := &cobra.Command{
		Use:           "gaiya-cloud",
		Short:         "Gaiya account, payment, and AI API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (or env CONFIG_PATH)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE:  serve,
	}
	for _, cmd := range []*cobra.Command{root, serveCmd} {
		cmd.Flags().IntVar(&port, "port", 0, "server port (overrides config)")
		cmd.Flags().BoolVar(&sweeper, "sweeper", true, "run the maintenance sweeper in-process")
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, 0)
			if err != nil {
				return err
			}
			if errMigrate := app.Migrate(cmd.Context(), cfg); errMigrate != nil {
				return errMigrate
			}
			log.Info("migration finished")
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired rate-limit entries, payment cache rows, and quota counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, 0)
			if err != nil {
				return err
			}
			report, errSweep := app.Sweep(cmd.Context(), cfg)
			if errSweep != nil {
				return errSweep
			}
			log.WithField("rate_limit_entries", report.RateLimitEntries).
				WithField("payment_cache", report.PaymentCache).
				WithField("quota_usage", report.QuotaUsage).
				Info("sweep finished")
			return nil
		},
	}

	root.AddCommand(serveCmd, migrateCmd, sweepCmd)
	return root
}

// loadConfig reads the config, applies the port flag, and installs logging.
func loadConfig(path string, port int) (config.Config, error) {
	cfg, err := config.Load(config.ResolveConfigPath(path))
	if err != nil {
		return config.Config{}, err
	}
	if port != 0 {
		if errValidate := validatePort(port); errValidate != nil {
			return config.Config{}, errValidate
		}
		cfg.Port = port
	}
	if errSetup := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: cfg.Log.Verbose,
		File:    cfg.Log.File,
	}); errSetup != nil {
		return config.Config{}, errSetup
	}
	return cfg, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
