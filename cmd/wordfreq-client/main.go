// Command wordfreq-client sends one word-frequency request and prints the reply.
//
//	wordfreq-client [text] [limit]
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/next-trace/scg-wordfreq/config"
	"github.com/next-trace/scg-wordfreq/requester"
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
	// stdout carries the CLI output
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: max(level, slog.LevelWarn)}))

	tr, cleanup, err := transport.Open(cfg, transport.RoleRequester, logger)
	if err != nil {
		os.Stdout.WriteString("Error: " + err.Error() + "\n")

		return 1
	}
	defer cleanup()

	client := requester.New(cfg.Requester(), tr, logger)
	if err := requester.Run(context.Background(), os.Stdout, client, os.Args[1:]); err != nil {
		return 1
	}

	return 0
}
