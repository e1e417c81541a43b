package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/config"
	"github.com/listenupapp/shelfsync/internal/logger"
	"github.com/listenupapp/shelfsync/internal/store"
	"github.com/listenupapp/shelfsync/internal/store/sqlite"
)

// StoreHandle wraps the local store with shutdown capability.
type StoreHandle struct {
	*store.Store
	DeviceID string
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// openKV opens the configured backend under the data path. name separates
// the daemon's database from the book server's.
func openKV(cfg *config.Config, name string, log *slog.Logger) (store.KV, error) {
	if err := os.MkdirAll(cfg.Store.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		kv, err := sqlite.Open(filepath.Join(cfg.Store.DataPath, name+".db"), log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return kv, nil
	default:
		kv, err := store.OpenBadger(filepath.Join(cfg.Store.DataPath, name), log)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return kv, nil
	}
}

// ProvideStore provides the daemon's local store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	kv, err := openKV(cfg, "db", log.Component("store"))
	if err != nil {
		return nil, err
	}
	st := store.New(kv, log.Component("store"))

	deviceID, err := st.DeviceID(context.Background())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load device id: %w", err)
	}

	log.Info("Local store initialized", "backend", cfg.Store.Backend, "device_id", deviceID)
	return &StoreHandle{Store: st, DeviceID: deviceID}, nil
}
