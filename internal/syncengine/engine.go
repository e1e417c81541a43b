// Package syncengine decides whether each write goes to the book server now or
// into the pending queue, and replays the queue in order when connectivity
// returns.
package syncengine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
	"github.com/listenupapp/shelfsync/internal/id"
	"github.com/listenupapp/shelfsync/internal/netstatus"
	"github.com/listenupapp/shelfsync/internal/remote"
)

// DefaultMappingTTL is how long a temporary-id mapping outlives the last
// queued mutation referencing it.
const DefaultMappingTTL = 24 * time.Hour

// LocalStore is the subset of the local store the engine uses.
type LocalStore interface {
	SaveBook(ctx context.Context, book domain.Book) error
	DeleteBook(ctx context.Context, bookID int64) error
	ReplaceBook(ctx context.Context, oldID int64, book domain.Book) error
	SaveNote(ctx context.Context, note domain.Note) error
	DeleteNote(ctx context.Context, bookID, noteID int64) error
	ReplaceNote(ctx context.Context, oldID int64, note domain.Note) error

	AddPendingMutation(ctx context.Context, m domain.PendingMutation) (domain.PendingMutation, error)
	PendingMutations(ctx context.Context) ([]domain.PendingMutation, error)
	RemovePendingMutation(ctx context.Context, mutationID string) error

	PutIDMapping(ctx context.Context, m domain.IDMapping) error
	ResolveID(ctx context.Context, kind domain.EntityKind, tempID int64) (int64, error)
	ListIDMappings(ctx context.Context) ([]domain.IDMapping, error)
	DeleteIDMapping(ctx context.Context, kind domain.EntityKind, tempID int64) error
}

// Remote is the book server API used for writes.
type Remote interface {
	CreateBook(ctx context.Context, book domain.Book, opts ...remote.CallOption) (domain.Book, error)
	UpdateBook(ctx context.Context, book domain.Book, opts ...remote.CallOption) (domain.Book, error)
	DeleteBook(ctx context.Context, bookID int64, opts ...remote.CallOption) error
	CreateNote(ctx context.Context, bookID int64, input domain.NoteInput, opts ...remote.CallOption) (domain.Note, error)
	DeleteNote(ctx context.Context, bookID, noteID int64, opts ...remote.CallOption) error
}

// Connectivity reports reachability of the server.
type Connectivity interface {
	IsOnline() bool
	Subscribe() (<-chan netstatus.Transition, func())
}

// Invalidation tells caches which collections changed on the server.
type Invalidation struct {
	Collections []domain.Collection
}

// Config tunes an Engine. Zero values select defaults.
type Config struct {
	// RetryInterval drains periodically while online and the queue is not
	// empty. Zero disables periodic retry.
	RetryInterval time.Duration
	MappingTTL    time.Duration
	Clock         *id.Clock
	Now           func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	store  LocalStore
	remote Remote
	net    Connectivity
	logger *slog.Logger

	clock         *id.Clock
	now           func() time.Time
	retryInterval time.Duration
	mappingTTL    time.Duration

	draining atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]func(Invalidation)
	nextSub int

	bgMu  sync.Mutex
	bgCtx context.Context
	bg    sync.WaitGroup
}

// New creates an Engine.
func New(st LocalStore, rc Remote, net Connectivity, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = id.NewClock()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MappingTTL <= 0 {
		cfg.MappingTTL = DefaultMappingTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:         st,
		remote:        rc,
		net:           net,
		logger:        logger,
		clock:         cfg.Clock,
		now:           cfg.Now,
		retryInterval: cfg.RetryInterval,
		mappingTTL:    cfg.MappingTTL,
		subs:          make(map[int]func(Invalidation)),
		bgCtx:         context.Background(),
	}
}

// IsDraining reports whether a drain pass is running.
func (e *Engine) IsDraining() bool {
	return e.draining.Load()
}

// Subscribe registers fn for invalidations published after each drain pass.
// The returned func unregisters it.
func (e *Engine) Subscribe(fn func(Invalidation)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	subID := e.nextSub
	e.nextSub++
	e.subs[subID] = fn
	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, subID)
	}
}

func (e *Engine) publish(inv Invalidation) {
	e.subsMu.Lock()
	fns := make([]func(Invalidation), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range fns {
		fn(inv)
	}
}

// kick starts a background drain. Used when a write had to queue behind an
// older pending mutation while online.
func (e *Engine) kick() {
	e.bgMu.Lock()
	ctx := e.bgCtx
	e.bgMu.Unlock()

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if _, err := e.Drain(ctx); err != nil {
			e.logger.Warn("background drain failed", "error", err)
		}
	}()
}

// Wait blocks until background drains started by Submit have returned.
func (e *Engine) Wait() {
	e.bg.Wait()
}
