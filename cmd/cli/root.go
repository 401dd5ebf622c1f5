package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sho7650/social-bridge/internal/app"
	"github.com/sho7650/social-bridge/internal/config"
	"github.com/sho7650/social-bridge/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "social-bridge",
	Short: "Sync and inspect Bluesky and Mastodon engagement",
	Long: `social-bridge pulls replies, likes and reposts of your published posts
from Bluesky and Mastodon into a local store, and merges them into the
comment lists of your content.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: failed to load .env: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default is $SOCIAL_BRIDGE_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func loadConfiguration(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("SOCIAL_BRIDGE_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.NewConfigManager().LoadFromFile(cmd.Context(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Global.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	// command output goes to stdout, logs stay out of its way
	if _, err := logger.Init(level, "stderr"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads the configuration, builds the engine and closes it after fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger.Log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
