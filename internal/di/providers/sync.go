package providers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/config"
	"github.com/listenupapp/shelfsync/internal/logger"
	"github.com/listenupapp/shelfsync/internal/netstatus"
	"github.com/listenupapp/shelfsync/internal/querycache"
	"github.com/listenupapp/shelfsync/internal/remote"
	"github.com/listenupapp/shelfsync/internal/repository"
	"github.com/listenupapp/shelfsync/internal/syncengine"
)

// RemoteHandle wraps the book server client with shutdown capability.
type RemoteHandle struct {
	*remote.Client
}

// Shutdown implements do.Shutdownable.
func (h *RemoteHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideRemote provides the book server client.
func ProvideRemote(i do.Injector) (*RemoteHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	st := do.MustInvoke[*StoreHandle](i)

	client, err := remote.New(remote.Options{
		BaseURL:           cfg.Remote.BaseURL,
		Timeout:           cfg.Remote.Timeout,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.Burst,
		DeviceID:          st.DeviceID,
	}, log.Component("remote"))
	if err != nil {
		return nil, err
	}

	log.Info("Remote client initialized", "base_url", cfg.Remote.BaseURL)
	return &RemoteHandle{Client: client}, nil
}

// background runs a loop until Shutdown cancels it.
type background struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *background) start(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
	}()
}

func (b *background) stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// NetworkHandle owns the connectivity monitor and its prober loop.
type NetworkHandle struct {
	Monitor *netstatus.Monitor
	Prober  *netstatus.Prober
	bg      background
}

// Shutdown implements do.Shutdownable.
func (h *NetworkHandle) Shutdown() error {
	h.bg.stop()
	return nil
}

// ProvideNetwork provides the connectivity monitor. The first probe runs
// synchronously so the engine starts with an accurate status.
func ProvideNetwork(i do.Injector) (*NetworkHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	monitor := netstatus.NewMonitor(false, log.Component("netstatus"))
	prober := netstatus.NewProber(monitor, cfg.Network.ProbeURL, cfg.Network.ProbeInterval, cfg.Remote.Timeout, log.Component("netstatus"))
	monitor.Set(prober.Probe(context.Background()))

	h := &NetworkHandle{Monitor: monitor, Prober: prober}
	h.bg.start(prober.Run)

	log.Info("Connectivity monitor started",
		"probe_url", cfg.Network.ProbeURL,
		"interval", cfg.Network.ProbeInterval,
	)
	return h, nil
}

// EngineHandle owns the sync engine and its replay loop.
type EngineHandle struct {
	*syncengine.Engine
	bg     background
	logger *slog.Logger
}

// Shutdown implements do.Shutdownable.
func (h *EngineHandle) Shutdown() error {
	h.bg.stop()
	h.Wait()
	return nil
}

// ProvideEngine provides the sync engine and starts automatic replay.
func ProvideEngine(i do.Injector) (*EngineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	st := do.MustInvoke[*StoreHandle](i)
	rc := do.MustInvoke[*RemoteHandle](i)
	network := do.MustInvoke[*NetworkHandle](i)

	engine := syncengine.New(st.Store, rc.Client, network.Monitor, syncengine.Config{
		RetryInterval: cfg.Sync.RetryInterval,
	}, log.Component("syncengine"))

	h := &EngineHandle{Engine: engine, logger: log.Component("syncengine")}
	h.bg.start(func(ctx context.Context) {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("Sync engine stopped", "error", err)
		}
	})

	log.Info("Sync engine started", "retry_interval", cfg.Sync.RetryInterval)
	return h, nil
}

// CacheHandle wraps the query cache with shutdown capability.
type CacheHandle struct {
	*querycache.Cache
	unbind func()
}

// Shutdown implements do.Shutdownable.
func (h *CacheHandle) Shutdown() error {
	if h.unbind != nil {
		h.unbind()
	}
	h.Close()
	return nil
}

// ProvideCache provides the query cache, invalidated by the sync engine.
func ProvideCache(i do.Injector) (*CacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	engine := do.MustInvoke[*EngineHandle](i)

	cache := querycache.New(querycache.Options{
		StaleTime:           cfg.Cache.StaleTime,
		RefetchOnInvalidate: true,
		Logger:              log.Component("querycache"),
	})
	return &CacheHandle{Cache: cache, unbind: repository.BindInvalidation(engine.Engine, cache)}, nil
}
