package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for static binaries

	"github.com/ericfisherdev/critchecker/internal/adapter/driving/cli"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Cancel the run on SIGINT/SIGTERM; no report is written after cancellation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCommand(cli.Deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}).ExecuteContext(ctx)
}
