package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/config"
	"github.com/JakeFAU/release-notes-watcher/internal/logging"
	"github.com/JakeFAU/release-notes-watcher/internal/server"
)

var (
	cfgFile string
	envFile string
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watcher",
		Short: "Watches a release-notes page and posts summaries of new changes.",
		Long: `watcher fetches a single public page, hashes its text and compares the
hash with the one stored from the previous pass. When the page changed it asks
Gemini for a short summary of what is new, records the new hash and posts the
summary to a chat webhook.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

// loadEnvFile populates the process environment from path. A missing file is
// not an error; variables already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// setup loads configuration, builds the logger and wires the application.
func setup(ctx context.Context) (*server.App, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return app, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
