package syncengine

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/id"
	"github.com/listenupapp/shelfsync/internal/netstatus"
	"github.com/listenupapp/shelfsync/internal/remote"
	"github.com/listenupapp/shelfsync/internal/store"
)

type call struct {
	kind   domain.MutationKind
	bookID int64
	noteID int64
	key    string
}

// fakeRemote is an in-memory book server. Creates are deduplicated by
// idempotency key the way the real server does it.
type fakeRemote struct {
	mu       sync.Mutex
	books    map[int64]domain.Book
	notes    map[int64][]domain.Note
	nextID   int64
	byKey    map[string]any
	calls    []call
	offline  bool
	rejectFn func(c call) int
	// dropResponse makes the next create succeed on the server but fail in
	// transit.
	dropResponse bool
	beforeCall   func(c call)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		books:  make(map[int64]domain.Book),
		notes:  make(map[int64][]domain.Note),
		nextID: 1000,
		byKey:  make(map[string]any),
	}
}

func idempotencyKey(opts []remote.CallOption) string {
	req, _ := http.NewRequest(http.MethodGet, "http://fake", nil) //nolint:errcheck // Constant URL
	for _, o := range opts {
		o(req)
	}
	return req.Header.Get(remote.HeaderIdempotencyKey)
}

func (f *fakeRemote) begin(c call) error {
	if f.beforeCall != nil {
		f.beforeCall(c)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	offline := f.offline
	var status int
	if f.rejectFn != nil {
		status = f.rejectFn(c)
	}
	f.mu.Unlock()

	if offline {
		return domainerrors.NetworkUnavailable(nil, "dial tcp: connection refused")
	}
	if status != 0 {
		return domainerrors.RemoteRejected(status, "rejected")
	}
	return nil
}

func (f *fakeRemote) takeDrop() bool {
	drop := f.dropResponse
	f.dropResponse = false
	return drop
}

func (f *fakeRemote) CreateBook(_ context.Context, book domain.Book, opts ...remote.CallOption) (domain.Book, error) {
	key := idempotencyKey(opts)
	if err := f.begin(call{kind: domain.MutationCreate, bookID: book.ID, key: key}); err != nil {
		return domain.Book{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.byKey[key]; ok {
		return prev.(domain.Book), nil
	}
	f.nextID++
	book.ID = f.nextID
	f.books[book.ID] = book
	f.byKey[key] = book
	if f.takeDrop() {
		return domain.Book{}, domainerrors.NetworkUnavailable(nil, "connection reset")
	}
	return book, nil
}

func (f *fakeRemote) UpdateBook(_ context.Context, book domain.Book, opts ...remote.CallOption) (domain.Book, error) {
	if err := f.begin(call{kind: domain.MutationUpdate, bookID: book.ID, key: idempotencyKey(opts)}); err != nil {
		return domain.Book{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.books[book.ID]; !ok {
		return domain.Book{}, domainerrors.RemoteRejected(http.StatusNotFound, "book not found")
	}
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeRemote) DeleteBook(_ context.Context, bookID int64, opts ...remote.CallOption) error {
	if err := f.begin(call{kind: domain.MutationDelete, bookID: bookID, key: idempotencyKey(opts)}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.books[bookID]; !ok {
		return domainerrors.RemoteRejected(http.StatusNotFound, "book not found")
	}
	delete(f.books, bookID)
	delete(f.notes, bookID)
	return nil
}

func (f *fakeRemote) CreateNote(_ context.Context, bookID int64, input domain.NoteInput, opts ...remote.CallOption) (domain.Note, error) {
	key := idempotencyKey(opts)
	if err := f.begin(call{kind: domain.MutationCreateNote, bookID: bookID, key: key}); err != nil {
		return domain.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.byKey[key]; ok {
		return prev.(domain.Note), nil
	}
	if _, ok := f.books[bookID]; !ok {
		return domain.Note{}, domainerrors.RemoteRejected(http.StatusNotFound, "book not found")
	}
	f.nextID++
	note := domain.Note{ID: f.nextID, BookID: bookID, Content: input.Content, DateISO: input.DateISO}
	f.notes[bookID] = append(f.notes[bookID], note)
	f.byKey[key] = note
	return note, nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, bookID, noteID int64, opts ...remote.CallOption) error {
	if err := f.begin(call{kind: domain.MutationDeleteNote, bookID: bookID, noteID: noteID, key: idempotencyKey(opts)}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	notes := f.notes[bookID]
	for i, n := range notes {
		if n.ID == noteID {
			f.notes[bookID] = append(notes[:i], notes[i+1:]...)
			return nil
		}
	}
	return domainerrors.RemoteRejected(http.StatusNotFound, "note not found")
}

func (f *fakeRemote) seed(books ...domain.Book) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range books {
		f.books[b.ID] = b
	}
}

func (f *fakeRemote) book(bookID int64) (domain.Book, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[bookID]
	return b, ok
}

func (f *fakeRemote) callsOf(kind domain.MutationKind) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *store.Store
	remote *fakeRemote
	net    *netstatus.Monitor
	now    time.Time
}

func setup(t *testing.T, online bool) *harness {
	t.Helper()
	kv, err := store.OpenBadgerInMemory(nil)
	require.NoError(t, err)

	h := &harness{
		remote: newFakeRemote(),
		net:    netstatus.NewMonitor(online, nil),
		now:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.now }
	h.store = store.New(kv, nil, store.WithClock(now))
	t.Cleanup(func() { _ = h.store.Close() })

	h.engine = New(h.store, h.remote, h.net, Config{
		Clock: id.NewClockAt(now),
		Now:   now,
	}, nil)
	return h
}

func dune() domain.Book {
	return domain.Book{Name: "Dune", Author: "Frank Herbert", Editor: "Chilton", Year: 1965}
}

func (h *harness) queue(t *testing.T) []domain.PendingMutation {
	t.Helper()
	q, err := h.store.PendingMutations(t.Context())
	require.NoError(t, err)
	return q
}

func TestSubmit_OfflineCreateThenReconnect(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	res, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	require.True(t, res.Queued)
	require.NotNil(t, res.Book)
	tempID := res.Book.ID
	assert.Equal(t, h.now.UnixMilli(), tempID)

	books, err := h.store.GetBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, tempID, books[0].ID)
	assert.Len(t, h.queue(t), 1)
	assert.Empty(t, h.remote.callsOf(domain.MutationCreate))

	var invalidations []Invalidation
	h.engine.Subscribe(func(inv Invalidation) { invalidations = append(invalidations, inv) })

	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, h.queue(t))

	books, err = h.store.GetBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, int64(1001), books[0].ID)
	assert.Equal(t, "Dune", books[0].Name)

	require.Len(t, invalidations, 1)
	assert.Equal(t, []domain.Collection{domain.CollectionBooks}, invalidations[0].Collections)
}

func TestSubmit_OfflineToggleReplaysWholeBook(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	require.NoError(t, h.store.SaveBooks(ctx, []domain.Book{b}))

	toggled, err := b.Toggled(domain.ToggleFavorite)
	require.NoError(t, err)
	res, err := h.engine.Submit(ctx, UpdateBook(toggled))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	local, err := h.store.GetBook(ctx, 7)
	require.NoError(t, err)
	assert.True(t, local.Favorite)

	h.net.Set(true)
	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)

	server, ok := h.remote.book(7)
	require.True(t, ok)
	assert.True(t, server.Favorite)
	assert.Equal(t, "Frank Herbert", server.Author)
}

func TestSubmit_OnlineRejectionIsReturnedAndNotQueued(t *testing.T) {
	h := setup(t, true)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	h.remote.rejectFn = func(call) int { return http.StatusInternalServerError }

	b.Read = true
	_, err := h.engine.Submit(ctx, UpdateBook(b))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrRemoteRejected)
	assert.Equal(t, http.StatusInternalServerError, domainerrors.RemoteStatusOf(err))
	assert.Empty(t, h.queue(t))
}

func TestSubmit_UnreachableServerQueues(t *testing.T) {
	h := setup(t, true)
	ctx := t.Context()
	h.remote.offline = true

	res, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	q := h.queue(t)
	require.Len(t, q, 1)
	// The key sent on the failed attempt is reused on replay.
	attempts := h.remote.callsOf(domain.MutationCreate)
	require.Len(t, attempts, 1)
	assert.Equal(t, q[0].ID, attempts[0].key)

	h.remote.offline = false
	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)

	attempts = h.remote.callsOf(domain.MutationCreate)
	require.Len(t, attempts, 2)
	assert.Equal(t, attempts[0].key, attempts[1].key)
}

func TestSubmit_OnlineCreatePersistsServerEntity(t *testing.T) {
	h := setup(t, true)
	ctx := t.Context()

	res, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	assert.False(t, res.Queued)
	require.NotNil(t, res.Book)
	assert.Equal(t, int64(1001), res.Book.ID)

	local, err := h.store.GetBook(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "Dune", local.Name)
	assert.Empty(t, h.queue(t))
}

func TestSubmit_InvalidOperation(t *testing.T) {
	h := setup(t, true)

	_, err := h.engine.Submit(t.Context(), DeleteBook(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestDrain_RemapsTemporaryIDs(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	created, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	tempID := created.Book.ID

	updated := *created.Book
	updated.Rating = 4
	_, err = h.engine.Submit(ctx, UpdateBook(updated))
	require.NoError(t, err)

	noteRes, err := h.engine.Submit(ctx, CreateNote(tempID, "Spice must flow"))
	require.NoError(t, err)
	require.NotNil(t, noteRes.Note)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", noteRes.Note.DateISO)

	// Local view: one book, no duplicate.
	books, err := h.store.GetBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 4, books[0].Rating)
	require.Len(t, h.queue(t), 3)

	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.ElementsMatch(t, []domain.Collection{domain.CollectionBooks, domain.CollectionNotes}, report.Collections)

	serverID := int64(1001)
	server, ok := h.remote.book(serverID)
	require.True(t, ok)
	assert.Equal(t, 4, server.Rating)

	updates := h.remote.callsOf(domain.MutationUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, serverID, updates[0].bookID)
	notes := h.remote.callsOf(domain.MutationCreateNote)
	require.Len(t, notes, 1)
	assert.Equal(t, serverID, notes[0].bookID)

	books, err = h.store.GetBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, serverID, books[0].ID)

	localNotes, err := h.store.GetNotes(ctx, serverID)
	require.NoError(t, err)
	require.Len(t, localNotes, 1)
	assert.Equal(t, int64(1002), localNotes[0].ID)
	assert.Equal(t, serverID, localNotes[0].BookID)

	resolved, err := h.store.ResolveID(ctx, domain.KindBook, tempID)
	require.NoError(t, err)
	assert.Equal(t, serverID, resolved)
}

func TestSubmit_TranslatesAfterCreateReplayed(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	created, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	h.net.Set(true)
	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)

	// A caller still holding the temporary id reaches the server record.
	res, err := h.engine.Submit(ctx, DeleteBook(created.Book.ID))
	require.NoError(t, err)
	assert.False(t, res.Queued)
	_, ok := h.remote.book(1001)
	assert.False(t, ok)
}

func TestDrain_IdempotentAfterLostResponse(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	_, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)

	h.net.Set(true)
	h.remote.dropResponse = true
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, h.queue(t), 1)

	report, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	h.remote.mu.Lock()
	assert.Len(t, h.remote.books, 1)
	h.remote.mu.Unlock()
}

func TestDrain_SkipsCreateWithExistingMapping(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	res, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	require.NoError(t, h.store.PutIDMapping(ctx, domain.IDMapping{
		Kind: domain.KindBook, TempID: res.Book.ID, ServerID: 555, CreatedAt: h.now,
	}))

	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, h.remote.callsOf(domain.MutationCreate))
	assert.Empty(t, h.queue(t))
}

func TestDrain_FailureKeepsOrderAndDefersDependents(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	first, second := dune(), dune()
	first.ID, second.ID = 1, 2
	second.Name = "Emma"
	h.remote.seed(first, second)

	first.Rating = 1
	_, err := h.engine.Submit(ctx, UpdateBook(first))
	require.NoError(t, err)
	second.Rating = 2
	_, err = h.engine.Submit(ctx, UpdateBook(second))
	require.NoError(t, err)
	first.Rating = 3
	_, err = h.engine.Submit(ctx, UpdateBook(first))
	require.NoError(t, err)
	before := h.queue(t)

	h.remote.rejectFn = func(c call) int {
		if c.bookID == 1 {
			return http.StatusServiceUnavailable
		}
		return 0
	}
	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Deferred)

	after := h.queue(t)
	require.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[2].ID, after[1].ID)
	assert.Len(t, h.remote.callsOf(domain.MutationUpdate), 2)

	h.remote.rejectFn = nil
	_, err = h.engine.Drain(ctx)
	require.NoError(t, err)
	server, _ := h.remote.book(1)
	assert.Equal(t, 3, server.Rating)
}

func TestDrain_DeleteOfMissingRecordSucceeds(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	_, err := h.engine.Submit(ctx, DeleteBook(7))
	require.NoError(t, err)
	_, err = h.engine.Submit(ctx, DeleteNote(7, 70))
	require.NoError(t, err)

	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, h.queue(t))
}

func TestDrain_SingleFlight(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	_, err := h.engine.Submit(ctx, UpdateBook(b))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.beforeCall = func(call) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	h.net.Set(true)

	done := make(chan DrainReport)
	go func() {
		report, _ := h.engine.Drain(ctx) //nolint:errcheck // Checked via report
		done <- report
	}()

	<-entered
	assert.True(t, h.engine.IsDraining())
	second, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Succeeded)
	assert.False(t, h.engine.IsDraining())
}

func TestDrain_PicksUpMutationsSubmittedMidDrain(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	b.Rating = 1
	_, err := h.engine.Submit(ctx, UpdateBook(b))
	require.NoError(t, err)

	var once sync.Once
	h.remote.beforeCall = func(call) {
		once.Do(func() {
			next := b
			next.Rating = 2
			res, err := h.engine.Submit(ctx, UpdateBook(next))
			assert.NoError(t, err)
			assert.True(t, res.Queued)
		})
	}
	h.net.Set(true)

	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	h.engine.Wait()

	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, h.queue(t))
	server, _ := h.remote.book(7)
	assert.Equal(t, 2, server.Rating)
}

func TestSubmit_OrderingGuardQueuesBehindPending(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	b.Rating = 1
	_, err := h.engine.Submit(ctx, UpdateBook(b))
	require.NoError(t, err)

	h.net.Set(true)
	b.Rating = 5
	res, err := h.engine.Submit(ctx, UpdateBook(b))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	h.engine.Wait()
	assert.Empty(t, h.queue(t))
	updates := h.remote.callsOf(domain.MutationUpdate)
	require.Len(t, updates, 2)
	server, _ := h.remote.book(7)
	assert.Equal(t, 5, server.Rating)
}

func TestDrain_PrunesExpiredMappings(t *testing.T) {
	h := setup(t, true)
	ctx := t.Context()

	require.NoError(t, h.store.PutIDMapping(ctx, domain.IDMapping{
		Kind: domain.KindBook, TempID: 1, ServerID: 11, CreatedAt: h.now.Add(-48 * time.Hour),
	}))
	require.NoError(t, h.store.PutIDMapping(ctx, domain.IDMapping{
		Kind: domain.KindBook, TempID: 2, ServerID: 12, CreatedAt: h.now.Add(-time.Hour),
	}))

	_, err := h.engine.Drain(ctx)
	require.NoError(t, err)

	mappings, err := h.store.ListIDMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(2), mappings[0].TempID)
}

func TestRun_DrainsOnReconnect(t *testing.T) {
	h := setup(t, false)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	_, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Run(ctx) }()

	// Either Run sees the transition or it starts online; both drain.
	h.net.Set(true)

	require.Eventually(t, func() bool {
		return len(h.queue(t)) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestRun_RestoresClockFromQueue(t *testing.T) {
	h := setup(t, false)
	ctx, cancel := context.WithCancel(t.Context())

	future := h.now.Add(time.Hour).UnixMilli()
	b := dune()
	b.ID = future
	_, err := h.store.AddPendingMutation(ctx, domain.PendingMutation{Kind: domain.MutationCreate, Book: &b})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Run(ctx) }()
	require.Eventually(t, func() bool {
		return h.engine.clock.Next() > future
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-errc
}

// partialReplay queues an offline create and an update on its temporary id,
// then drains with updates failing so only the create reaches the server.
func partialReplay(t *testing.T, h *harness) (tempID, serverID int64) {
	t.Helper()
	ctx := t.Context()

	created, err := h.engine.Submit(ctx, CreateBook(dune()))
	require.NoError(t, err)
	fav := *created.Book
	fav.Favorite = true
	_, err = h.engine.Submit(ctx, UpdateBook(fav))
	require.NoError(t, err)

	h.remote.rejectFn = func(c call) int {
		if c.kind == domain.MutationUpdate {
			return http.StatusServiceUnavailable
		}
		return 0
	}
	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Len(t, h.queue(t), 1)

	return created.Book.ID, 1001
}

func TestSubmit_OrderingGuardSeesTemporaryIDOfReplayedCreate(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()
	_, serverID := partialReplay(t, h)
	h.remote.rejectFn = nil

	// A newer write on the server id must not overtake the queued update
	// that still names the temporary id.
	newer, ok := h.remote.book(serverID)
	require.True(t, ok)
	newer.Read = true
	res, err := h.engine.Submit(ctx, UpdateBook(newer))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	h.engine.Wait()
	assert.Empty(t, h.queue(t))

	server, ok := h.remote.book(serverID)
	require.True(t, ok)
	assert.True(t, server.Read)
	assert.False(t, server.Favorite)

	updates := h.remote.callsOf(domain.MutationUpdate)
	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.Equal(t, serverID, u.bookID)
	}
}

func TestDrain_DefersServerIDWriteBehindFailedTemporaryIDWrite(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()
	_, serverID := partialReplay(t, h)

	h.net.Set(false)
	later, ok := h.remote.book(serverID)
	require.True(t, ok)
	later.Rating = 5
	_, err := h.engine.Submit(ctx, UpdateBook(later))
	require.NoError(t, err)
	require.Len(t, h.queue(t), 2)

	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Deferred)
	assert.Len(t, h.queue(t), 2)
}

func TestDrain_PublishesCollectionsOfFailedReplays(t *testing.T) {
	h := setup(t, false)
	ctx := t.Context()

	b := dune()
	b.ID = 7
	h.remote.seed(b)
	b.Read = true
	_, err := h.engine.Submit(ctx, UpdateBook(b))
	require.NoError(t, err)

	var invalidations []Invalidation
	h.engine.Subscribe(func(inv Invalidation) { invalidations = append(invalidations, inv) })

	h.remote.rejectFn = func(call) int { return http.StatusInternalServerError }
	h.net.Set(true)
	report, err := h.engine.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, invalidations, 1)
	assert.Equal(t, []domain.Collection{domain.CollectionBooks}, invalidations[0].Collections)
}
