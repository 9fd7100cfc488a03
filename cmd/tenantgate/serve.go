package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/tenantgate/pkg/config"
	"github.com/rhuss/tenantgate/pkg/debug"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the settings gateway",
		Long: `Run the settings gateway.

Configuration is read from --config, TENANTGATE_CONFIG, ./config.yaml or
/etc/tenantgate/config.yaml, in that order, and may be overridden with
TENANTGATE_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")
	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("closing resources", "error", err)
		}
	}()

	slog.Info("tenantgate starting",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"cache", cfg.Cache.Type,
		"admin_auth", cfg.Admin.Auth,
	)
	return a.server.Run(ctx)
}
