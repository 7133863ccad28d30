// Command gradeserver serves grading sessions over WebSocket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/exercisegrade/progress"
	"github.com/jonwraymond/exercisegrade/server"
	"github.com/jonwraymond/exercisegrade/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	catalog, err := server.LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", "path", cfg.CatalogPath, "exercises", len(catalog.IDs()))

	var sink progress.Sink = progress.SinkFunc(func(_ context.Context, ev progress.Event) error {
		logger.Info("exercise solved", "session", ev.SessionID, "exercise", ev.ExerciseID, "attempts", ev.Attempts)
		return nil
	})
	if cfg.RedisAddr != "" {
		client, err := progress.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		sink = progress.Multi(sink, progress.NewRedisSink(client, progress.RedisConfig{}))
		logger.Info("publishing progress to redis", "addr", cfg.RedisAddr)
	}

	srv, err := server.New(server.Config{
		Addr:    cfg.Addr,
		Catalog: catalog,
		Engine: server.EngineConfig{
			DefaultTimeout: cfg.Timeout,
			MaxTimeout:     cfg.MaxTimeout,
			MaxRows:        cfg.MaxRows,
			MaxSteps:       cfg.MaxSteps,
		},
		Sink:           sink,
		RunRate:        rate.Limit(cfg.RunRate),
		RunBurst:       cfg.RunBurst,
		AllowedOrigins: cfg.Origins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
