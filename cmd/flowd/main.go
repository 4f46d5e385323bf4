// cmd/flowd/main.go
//
// flowd serves the workflow engine over HTTP.
//
// Flow:
// 1. Load disputeflow.yaml (defaults plus DISPUTEFLOW_* overrides)
// 2. Open the workflow store (PostgreSQL when database.url is set)
// 3. Serve until SIGINT/SIGTERM, then drain in-flight requests
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/disputeflow/internal/api"
	"github.com/kingrea/disputeflow/internal/config"
	"github.com/kingrea/disputeflow/internal/logging"
	"github.com/kingrea/disputeflow/internal/metrics"
	"github.com/kingrea/disputeflow/internal/workflow/engine"
	"github.com/kingrea/disputeflow/internal/workflow/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to disputeflow.yaml")
	initConfig := flag.Bool("init", false, "write a commented default config to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.EnsureFile(*configPath); err != nil {
			die("write config: %v", err)
		}
		fmt.Printf("Config ready at %s\n", *configPath)
		return
	}

	if err := run(*configPath); err != nil {
		die("%v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Path)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if cfg.UsesDatabase() {
		logger.Info("flowd: workflows from postgres")
	} else {
		logger.Info("flowd: workflows from %s", cfg.Workflows.Dir)
	}

	registry := metrics.DefaultRegistry()
	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithObserver(registry),
		engine.WithStrictDecisions(cfg.Engine.StrictDecisions),
	)
	srv := api.NewServer(api.SettingsFromConfig(cfg),
		api.WithEngine(eng),
		api.WithStore(st),
		api.WithMetrics(registry),
		api.WithLogger(logger),
	)
	// In-flight runs outlive ctx; Shutdown drains them.
	if err := srv.Start(context.Background()); err != nil {
		return err
	}
	logger.Info("flowd: ready at %s", srv.BaseURL())

	<-ctx.Done()
	logger.Info("flowd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
