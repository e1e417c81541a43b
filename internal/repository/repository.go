// Package repository exposes books and notes to the application: reads go
// through the query cache with a local fallback, writes go through the sync
// engine with optimistic cache updates.
package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"

	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/querycache"
	"github.com/listenupapp/shelfsync/internal/syncengine"
)

// Remote is the read side of the book server.
type Remote interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	GetBook(ctx context.Context, bookID int64) (domain.Book, error)
	ListNotes(ctx context.Context, bookID int64) ([]domain.Note, error)
}

// Local is the part of the local store used for reads and fallbacks.
type Local interface {
	SaveBooks(ctx context.Context, books []domain.Book) error
	GetBooks(ctx context.Context) ([]domain.Book, error)
	SaveBook(ctx context.Context, book domain.Book) error
	GetBook(ctx context.Context, bookID int64) (domain.Book, error)
	SaveNotes(ctx context.Context, bookID int64, notes []domain.Note) error
	GetNotes(ctx context.Context, bookID int64) ([]domain.Note, error)
	PendingMutations(ctx context.Context) ([]domain.PendingMutation, error)
	ResolveID(ctx context.Context, kind domain.EntityKind, tempID int64) (int64, error)
	ListIDMappings(ctx context.Context) ([]domain.IDMapping, error)
}

// Engine submits writes.
type Engine interface {
	Submit(ctx context.Context, op syncengine.Operation) (syncengine.Result, error)
}

// CoverLookup finds cover images and edition counts.
type CoverLookup interface {
	FindCover(ctx context.Context, title string) (string, bool, error)
	EditionCount(ctx context.Context, title, author string) (int, error)
}

// Uploader stores an image and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (assets.Upload, error)
}

// Validator checks struct constraints.
type Validator interface {
	Validate(s any) error
}

// Deps are the collaborators shared by the repositories. Covers and Uploader
// are only used by Books and may be nil elsewhere.
type Deps struct {
	Remote    Remote
	Local     Local
	Engine    Engine
	Cache     *querycache.Cache
	Validator Validator
	Covers    CoverLookup
	Uploader  Uploader
}

type base struct {
	remote    Remote
	local     Local
	engine    Engine
	cache     *querycache.Cache
	validator Validator
	logger    *slog.Logger
}

func newBase(d Deps, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return base{
		remote:    d.Remote,
		local:     d.Local,
		engine:    d.Engine,
		cache:     d.Cache,
		validator: d.Validator,
		logger:    logger,
	}
}

// BindInvalidation wires engine invalidations into cache and returns the
// unsubscribe func.
func BindInvalidation(engine *syncengine.Engine, cache *querycache.Cache) func() {
	return engine.Subscribe(func(inv syncengine.Invalidation) {
		cache.InvalidateCollections(inv.Collections...)
	})
}

// fallback wraps the remote failure when no local copy exists either.
func fallback(remoteErr, localErr error, what string) error {
	if errors.Is(localErr, domainerrors.ErrNotFound) {
		return domainerrors.DataUnavailable(remoteErr, what+": server unreachable and no local copy")
	}
	return domainerrors.DataUnavailable(errors.Join(remoteErr, localErr), what+": server and local store failed")
}

// pending returns the queue with temporary ids translated to server ids, so
// mutations queued before their create replayed still land on the server
// record when overlaid.
func (r *base) pending(ctx context.Context) []domain.PendingMutation {
	queue, err := r.local.PendingMutations(ctx)
	if err != nil {
		r.logger.Warn("failed to read pending queue, serving without overlay", "error", err)
		return nil
	}
	if len(queue) == 0 {
		return queue
	}
	mappings, err := r.local.ListIDMappings(ctx)
	if err != nil {
		r.logger.Warn("failed to list id mappings, overlaying stored ids", "error", err)
	}
	return domain.ResolveQueue(queue, domain.NewIDTable(mappings))
}

func (r *base) resolve(ctx context.Context, kind domain.EntityKind, v int64) int64 {
	resolved, err := r.local.ResolveID(ctx, kind, v)
	if err != nil {
		return v
	}
	return resolved
}

// patchList applies fn to a copy of the list cached at key. ok is false when
// the list is not cached, in which case nothing changes.
func patchList[T any](c *querycache.Cache, key querycache.Key, fn func([]T) []T) (snap querycache.Snapshot, ok bool) {
	res, cached := c.Peek(key)
	if !cached {
		return querycache.Snapshot{}, false
	}
	if _, typed := querycache.Value[[]T](res); !typed {
		return querycache.Snapshot{}, false
	}
	return c.OptimisticUpdate(key, func(old any, _ bool) any {
		list, _ := old.([]T)
		return fn(slices.Clone(list))
	}), true
}

type snapshots []querycache.Snapshot

func (s *snapshots) add(snap querycache.Snapshot, ok bool) {
	if ok {
		*s = append(*s, snap)
	}
}

// commit marks every optimistically written key as settled.
func (s snapshots) commit(c *querycache.Cache) {
	for _, snap := range s {
		c.Commit(snap.Key)
	}
}

// rollback restores snapshots newest first.
func (s snapshots) rollback(c *querycache.Cache) {
	for i := len(s) - 1; i >= 0; i-- {
		c.Rollback(s[i])
	}
}
