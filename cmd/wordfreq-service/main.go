// Command wordfreq-service answers word-frequency requests on the configured bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/next-trace/scg-wordfreq/config"
	"github.com/next-trace/scg-wordfreq/responder"
	"github.com/next-trace/scg-wordfreq/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)

		return 1
	}

	level, _ := config.ParseLevel(cfg.LogLevel) // validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: responder.ReplaceLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, cleanup, err := transport.Open(cfg, transport.RoleResponder, logger)
	if err != nil {
		logger.Log(ctx, responder.LevelCritical, "connect failed", "err", err)

		return 1
	}
	defer cleanup()

	bus, err := responder.NewBus(logger)
	if err != nil {
		logger.Log(ctx, responder.LevelCritical, "bind analyzer", "err", err)

		return 1
	}

	if err := responder.New(cfg.Responder(), tr, bus, logger).Run(ctx); err != nil {
		return 1
	}

	return 0
}
