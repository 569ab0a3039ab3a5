package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/app"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/config"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "publisher run failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("publisher starting", "config", map[string]any{
		"env":             cfg.Env,
		"storage_type":    cfg.StorageType,
		"image_host_type": cfg.ImageHostType,
		"cms_type":        cfg.CMSType,
		"targets_file":    cfg.TargetsFile,
		"run_timeout":     cfg.RunTimeout.String(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := app.NewRuntime(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize publisher", "error", err)
		return err
	}
	defer runtime.Close()

	res := runtime.Run(ctx)
	if res.Status() == domain.RunAborted {
		return fmt.Errorf("run aborted: %w", res.Err)
	}
	return nil
}
