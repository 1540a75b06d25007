// Package main is the entry point for the ingest CLI binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "duck-ingest/pkg/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := cli.Execute(ctx)
	cancel()
	os.Exit(code)
}
