// Package querycache is an in-memory cache of query results with
// stale-while-revalidate reads, deduplicated fetches, optimistic writes with
// rollback, and prefix invalidation.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/listenupapp/shelfsync/internal/domain"
)

// Status of a cached query.
type Status string

// Statuses.
const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Result is a point-in-time view of a cache entry.
type Result struct {
	Value     any
	Status    Status
	Err       error
	UpdatedAt time.Time
	Stale     bool
}

type entry struct {
	value       any
	hasValue    bool
	status      Status
	err         error
	updatedAt   time.Time
	invalidated bool
	// generation changes on every local write; a fetch that began under an
	// older generation must not overwrite the entry.
	generation uint64
	fetcher    Fetcher
}

// Options configures a Cache.
type Options struct {
	// StaleTime is how long a successful result is served without refetching.
	StaleTime time.Duration
	// RefetchOnInvalidate refetches invalidated entries that have been read
	// with a fetcher, instead of waiting for the next Read.
	RefetchOnInvalidate bool
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group

	staleTime time.Duration
	refetch   bool
	now       func() time.Time
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Cache.
func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:   make(map[Key]*entry),
		staleTime: opts.StaleTime,
		refetch:   opts.RefetchOnInvalidate,
		now:       opts.Now,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close cancels background fetches and waits for them to return.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until in-flight background fetches have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{status: StatusLoading}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if !e.hasValue || e.invalidated {
		return true
	}
	return c.now().Sub(e.updatedAt) > c.staleTime
}

func (c *Cache) resultLocked(e *entry) Result {
	return Result{
		Value:     e.value,
		Status:    e.status,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
		Stale:     c.staleLocked(e),
	}
}

// Read returns the cached result for key and, when it is absent or stale,
// starts a background fetch. A first read returns StatusLoading.
func (c *Cache) Read(key Key, fetcher Fetcher) Result {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fetcher != nil {
		e.fetcher = fetcher
	}
	res := c.resultLocked(e)
	gen := e.generation
	c.mu.Unlock()

	if res.Stale && fetcher != nil {
		c.background(key, fetcher, gen)
	}
	return res
}

// Peek returns the cached result without fetching. ok is false if key was never cached.
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return c.resultLocked(e), true
}

// Fetch loads key synchronously, deduplicated with concurrent fetches of the
// same key, and stores the outcome. When a local write lands while the fetch
// is in flight the local value wins and is returned instead.
func (c *Cache) Fetch(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fetcher
	gen := e.generation
	c.mu.Unlock()

	return c.fetch(ctx, key, fetcher, gen)
}

func (c *Cache) background(key Key, fetcher Fetcher, gen uint64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.fetch(c.ctx, key, fetcher, gen); err != nil {
			c.logger.Debug("background fetch failed", "key", key, "error", err)
		}
	}()
}

func (c *Cache) fetch(ctx context.Context, key Key, fetcher Fetcher, gen uint64) (any, error) {
	v, err, _ := c.group.Do(string(key), func() (any, error) {
		return fetcher(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if e.generation != gen {
		c.logger.Debug("discarding fetch overtaken by local write", "key", key)
		if err != nil && !e.hasValue {
			return nil, err
		}
		return e.value, nil
	}

	if err != nil {
		e.err = err
		e.status = StatusError
		return nil, err
	}

	e.value = v
	e.hasValue = true
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	e.invalidated = false
	return v, nil
}

// Set stores a confirmed value.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.value = value
	e.hasValue = true
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	e.invalidated = false
	e.generation++
}

// Snapshot captures an entry before an optimistic write so it can be restored.
type Snapshot struct {
	Key       Key
	existed   bool
	value     any
	hasValue  bool
	status    Status
	err       error
	updatedAt time.Time
}

// OptimisticUpdate applies updater to the current value immediately and
// returns a snapshot of the previous state. updater receives ok=false when
// the key holds no value yet.
func (c *Cache) OptimisticUpdate(key Key, updater func(old any, ok bool) any) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, existed := c.entries[key]
	if !existed {
		e = c.entryLocked(key)
	}
	snap := Snapshot{
		Key:       key,
		existed:   existed,
		value:     e.value,
		hasValue:  e.hasValue,
		status:    e.status,
		err:       e.err,
		updatedAt: e.updatedAt,
	}

	e.value = updater(e.value, e.hasValue)
	e.hasValue = true
	e.status = StatusSuccess
	e.err = nil
	e.updatedAt = c.now()
	e.generation++
	return snap
}

// Commit marks the optimistic value at key as confirmed.
func (c *Cache) Commit(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.updatedAt = c.now()
		e.invalidated = false
	}
}

// Rollback restores the state captured by snap.
func (c *Cache) Rollback(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !snap.existed {
		delete(c.entries, snap.Key)
		return
	}
	e := c.entryLocked(snap.Key)
	e.value = snap.value
	e.hasValue = snap.hasValue
	e.status = snap.status
	e.err = snap.err
	e.updatedAt = snap.updatedAt
	e.generation++
}

// Invalidate marks every entry matching pattern stale and returns how many
// matched. With RefetchOnInvalidate, entries with a known fetcher are
// refreshed in the background.
func (c *Cache) Invalidate(pattern Key) int {
	type refresh struct {
		key     Key
		fetcher Fetcher
		gen     uint64
	}
	var refreshes []refresh

	c.mu.Lock()
	n := 0
	for key, e := range c.entries {
		if !key.Matches(pattern) {
			continue
		}
		e.invalidated = true
		n++
		if c.refetch && e.fetcher != nil {
			refreshes = append(refreshes, refresh{key: key, fetcher: e.fetcher, gen: e.generation})
		}
	}
	c.mu.Unlock()

	for _, r := range refreshes {
		c.background(r.key, r.fetcher, r.gen)
	}
	if n > 0 {
		c.logger.Debug("cache invalidated", "pattern", pattern, "entries", n)
	}
	return n
}

// InvalidateCollections invalidates every query of the named collections.
func (c *Cache) InvalidateCollections(collections ...domain.Collection) {
	for _, col := range collections {
		c.Invalidate(Key(col))
	}
}

// Value returns the typed value of r. ok is false when r holds no value of type T.
func Value[T any](r Result) (T, bool) {
	v, ok := r.Value.(T)
	return v, ok
}
