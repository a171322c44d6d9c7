// Package main drives synthetic WebSocket traffic against a gateway.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/broadcast.space/internal/platform/cmd"
	"github.com/louisbranch/broadcast.space/internal/tools/loadclient"
)

func main() {
	cfg, err := loadclient.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLoadClient, func(ctx context.Context, logger *zap.Logger) error {
		_, err := loadclient.Run(ctx, cfg, logger)
		return err
	})
	if err != nil {
		log.Fatalf("load run: %v", err)
	}
}
