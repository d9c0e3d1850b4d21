// Package cmd defines the tender-analyzer command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/config"
	"github.com/JakeFAU/tender-analyzer/internal/logging"
	"github.com/JakeFAU/tender-analyzer/internal/server"
)

var cfgFile string

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory, swapped in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server.App, error) {
	return server.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var logger *zap.Logger
	cmd := &cobra.Command{
		Use:   "tender-analyzer",
		Short: "Collects goszakup announcements and analyzes their technical specifications.",
		Long: `tender-analyzer fetches one procurement announcement from the goszakup
portal, assembles its record, stages its technical-specification files and runs
the analysis branches over them. Reports are saved as goszakup_<id>.json.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			logging.Sync(logger)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func appFrom(cmd *cobra.Command) (*server.App, error) {
	app, ok := cmd.Context().Value(appKey).(*server.App)
	if !ok || app == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return app, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
