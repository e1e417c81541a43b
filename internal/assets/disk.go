package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/shelfsync/internal/id"
)

// DiskStore keeps uploaded images in a directory served under a public path.
type DiskStore struct {
	dir        string
	publicPath string
	logger     *slog.Logger
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir, publicPath string, logger *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DiskStore{dir: dir, publicPath: "/" + strings.Trim(publicPath, "/"), logger: logger}, nil
}

// Dir returns the storage directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save validates data as an image and writes it under a unique name.
// baseURL prefixes the returned URL.
func (s *DiskStore) Save(_ context.Context, baseURL, name string, data []byte) (Upload, error) {
	mtype, err := DetectImage(data)
	if err != nil {
		return Upload{}, err
	}

	stored := id.MustGenerate("img") + "-" + fileName(name, mtype)
	path := filepath.Join(s.dir, stored)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Upload{}, fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Upload{}, fmt.Errorf("commit image: %w", err)
	}

	s.logger.Info("image stored", "file", stored, "size", len(data), "type", mtype.String())
	return Upload{
		Message:  "Image uploaded successfully",
		URL:      strings.TrimSuffix(baseURL, "/") + s.publicPath + "/" + stored,
		FileName: stored,
	}, nil
}
