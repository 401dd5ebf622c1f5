package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sho7650/social-bridge/internal/app"
	"github.com/sho7650/social-bridge/internal/config"
	"github.com/sho7650/social-bridge/internal/logger"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "social-bridge: failed to load .env: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", envOr("SOCIAL_BRIDGE_CONFIG", "config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "social-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cm := config.NewConfigManager()
	cfg, err := cm.LoadFromFile(ctx, configPath)
	if err != nil {
		return err
	}

	closer, err := logger.Init(cfg.Global.Log.Level, cfg.Global.Log.Sink)
	if err != nil {
		logger.Log.Warn("log_sink_fallback", "sink", cfg.Global.Log.Sink, "error", err)
	}
	defer closer.Close()
	log := logger.Log
	cm.SetLogger(log)

	log.Info("daemon_starting", "config", configPath, "database", cfg.Global.Database.Driver, "lock", cfg.Global.Lock.Backend)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown_close_failed", "error", err)
		}
	}()

	changes := make(chan config.ConfigChangeEvent, 1)
	if err := cm.WatchForChanges(ctx, configPath, changes); err != nil {
		log.Warn("config_watch_disabled", "error", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-changes:
				if ev.Type != config.EventConfigUpdated {
					continue
				}
				if err := a.ApplyConfig(cm.GetCurrentConfig()); err != nil {
					log.Error("config_apply_failed", "error", err)
				}
			}
		}
	}()

	stopScheduler := a.Scheduler.Start(ctx)
	defer stopScheduler()

	err = a.HTTPServer().ListenAndServe(ctx, cfg.Global.HTTP.Addr)
	log.Info("daemon_stopped")
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
