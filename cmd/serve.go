package cmd

import (
	"context"
	"fmt"
	"strings"

	"suite-backup/internal/api"
	"suite-backup/internal/application"
	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var listenAddr string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backup API for the dashboard",
		Long: `Serve the backup engine over HTTP.

The dashboard's reverse proxy authenticates the user and passes the
username in the configured actor header; every operation is recorded
in the audit log under that name. Metrics are served on /metrics and
dependency health on /healthz.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := application.New(cmd.Context(), cfg, application.Options{Registerer: reg})
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []api.Option{
		api.WithGatherer(reg),
		api.WithActorHeader(cfg.Server.ActorHeader),
		api.WithHealthCheck("directories", directoryCheck(cfg)),
	}
	if cfg.Database.Configured() {
		opts = append(opts, api.WithHealthCheck("database", app.CheckDatabase))
	}

	server := api.NewServer(app.Manager(), app.Logger(), opts...)
	return server.ListenAndServe(cmd.Context(), cfg.Server)
}

func directoryCheck(cfg *config.Config) api.HealthCheck {
	return func(ctx context.Context) error {
		health := cfg.CheckHealth(false)
		if health.OverallHealth != config.HealthUnhealthy {
			return nil
		}
		return appErrors.NewIOError(fmt.Sprintf("working directories unusable: %s", strings.Join(health.Issues, "; ")), nil)
	}
}
