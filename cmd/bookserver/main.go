// Package main provides the entry point for the reference book server.
package main

import (
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
	injector := di.NewContainer()

	if err := di.BootstrapServer(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// Stop accepting requests before the store closes.
	if srv, err := do.Invoke[*providers.HTTPServerHandle](injector); err == nil {
		if err := srv.Shutdown(); err != nil {
			log.Error("HTTP server shutdown error", "error", err)
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Server stopped")
}
