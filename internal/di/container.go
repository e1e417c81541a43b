// Package di provides dependency injection configuration for the sync daemon
// and the book server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/config"
	"github.com/listenupapp/shelfsync/internal/covers"
	"github.com/listenupapp/shelfsync/internal/di/providers"
	"github.com/listenupapp/shelfsync/internal/logger"
	"github.com/listenupapp/shelfsync/internal/repository"
	"github.com/listenupapp/shelfsync/internal/service"
	"github.com/listenupapp/shelfsync/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
// Providers are lazy: each binary bootstraps only the graph it needs.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Client: persistence and transport
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideRemote)
	do.Provide(injector, providers.ProvideNetwork)

	// Client: sync
	do.Provide(injector, providers.ProvideEngine)
	do.Provide(injector, providers.ProvideCache)

	// Client: collaborators and repositories
	do.Provide(injector, providers.ProvideCovers)
	do.Provide(injector, providers.ProvideUploader)
	do.Provide(injector, providers.ProvideBooks)
	do.Provide(injector, providers.ProvideNotes)

	// Server
	do.Provide(injector, providers.ProvideServerStore)
	do.Provide(injector, providers.ProvideBookService)
	do.Provide(injector, providers.ProvideUploadStore)
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// BootstrapDaemon initializes the sync daemon: local store, connectivity
// monitor, sync engine and repositories. The library is warmed in the
// background.
func BootstrapDaemon(ctx context.Context, injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RemoteHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.NetworkHandle](injector)
	_ = do.MustInvoke[*providers.EngineHandle](injector)
	_ = do.MustInvoke[*providers.CacheHandle](injector)

	_ = do.MustInvoke[*covers.Client](injector)
	_ = do.MustInvoke[*assets.Client](injector)
	_ = do.MustInvoke[*repository.Books](injector)
	_ = do.MustInvoke[*repository.Notes](injector)

	go providers.WarmLibrary(ctx, injector)

	return nil
}

// BootstrapServer initializes the book server and starts listening.
func BootstrapServer(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.ServerStoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.BookService](injector)
	if _, err := do.Invoke[*assets.DiskStore](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.RateLimiterHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
