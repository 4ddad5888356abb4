package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arcweave/dispatchd/internal/config"
	"github.com/arcweave/dispatchd/internal/daemon"
	"github.com/arcweave/dispatchd/internal/observability"
	"github.com/arcweave/dispatchd/internal/transport"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		dev        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, dev)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the daemon's config.json")
	cmd.Flags().BoolVarP(&dev, "dev", "d", false, "Use human-readable text logging instead of JSON")

	return cmd
}

func runServe(ctx context.Context, configPath string, dev bool) error {
	format := "json"
	if dev {
		format = "text"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFormat := cfg.Observability.LogFormat
	if logFormat == "" {
		logFormat = format
	}
	logLevel := cfg.Observability.LogLevel
	if logLevel == "" && dev {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: logLevel, Format: logFormat})

	d, err := daemon.New(cfg, logger.Slog())
	if err != nil {
		return fmt.Errorf("construct daemon: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchersDone := make(chan error, 1)
	go func() { watchersDone <- d.Run(runCtx) }()

	var httpDone chan error
	if containsTransport(cfg.Transports, "http") {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		server := transport.NewServer(d, addr, logger.Slog())
		httpDone = make(chan error, 1)
		logger.Info(runCtx, "dispatchd listening", "addr", addr)
		go func() { httpDone <- server.ListenAndServe(runCtx) }()
	}

	for _, tr := range cfg.Transports {
		if tr != "http" {
			logger.Warn(runCtx, "transport configured but not implemented by this daemon", "transport", tr)
		}
	}

	<-runCtx.Done()
	logger.Info(context.Background(), "shutting down")

	if err := <-watchersDone; err != nil {
		return err
	}
	if httpDone != nil {
		if err := <-httpDone; err != nil {
			return err
		}
	}
	return nil
}

func containsTransport(transports []string, want string) bool {
	for _, t := range transports {
		if t == want {
			return true
		}
	}
	return false
}
