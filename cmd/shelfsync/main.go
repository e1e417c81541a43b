// Package main provides the entry point for the ShelfSync sync daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/di"
	"github.com/listenupapp/shelfsync/internal/di/providers"
	"github.com/listenupapp/shelfsync/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	injector := di.NewContainer()

	if err := di.BootstrapDaemon(ctx, injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap sync daemon: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sync daemon...")
	cancel()

	// The engine must stop replaying before the store underneath it closes.
	if engine, err := do.Invoke[*providers.EngineHandle](injector); err == nil {
		if err := engine.Shutdown(); err != nil {
			log.Error("Failed to stop sync engine", "error", err)
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Sync daemon stopped")
}
