package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/api"
	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/config"
	"github.com/listenupapp/shelfsync/internal/logger"
	"github.com/listenupapp/shelfsync/internal/ratelimit"
	"github.com/listenupapp/shelfsync/internal/service"
	"github.com/listenupapp/shelfsync/internal/store"
	"github.com/listenupapp/shelfsync/internal/validation"
)

// ServerStoreHandle wraps the book server's key-value store.
type ServerStoreHandle struct {
	store.KV
}

// Shutdown implements do.Shutdownable.
func (h *ServerStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideServerStore provides the book server's store, kept apart from the
// daemon's local store.
func ProvideServerStore(i do.Injector) (*ServerStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	kv, err := openKV(cfg, "server-db", log.Component("server-store"))
	if err != nil {
		return nil, err
	}
	log.Info("Server store initialized", "backend", cfg.Store.Backend)
	return &ServerStoreHandle{KV: kv}, nil
}

// ProvideBookService provides the book service.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	kv := do.MustInvoke[*ServerStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	return service.NewBookService(kv.KV, do.MustInvoke[*validation.Validator](i), log.Component("books")), nil
}

// ProvideUploadStore provides disk storage for uploaded cover images.
func ProvideUploadStore(i do.Injector) (*assets.DiskStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	return assets.NewDiskStore(cfg.Server.UploadPath, api.UploadsPath, log.Component("uploads"))
}

// RateLimiterHandle wraps the per-client limiter with Shutdownable.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRateLimiter provides the per-client request limiter.
func ProvideRateLimiter(_ do.Injector) (*RateLimiterHandle, error) {
	return &RateLimiterHandle{KeyedRateLimiter: ratelimit.New(serverRequestsPerSecond, serverBurst)}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the book server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	books := do.MustInvoke[*service.BookService](i)
	uploads := do.MustInvoke[*assets.DiskStore](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	handler := api.NewServer(books, uploads, limiter.KeyedRateLimiter, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
