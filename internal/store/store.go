// Package store is the durable local store of the sync client: the cached
// book and note collections, the pending mutation queue, the device id and the
// temporary-id translation table, kept as JSON documents in a KV backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
	"github.com/listenupapp/shelfsync/internal/id"
)

// Store is the local store. Each collection lives under a single key, so every
// read-modify-write sequence runs under mu.
type Store struct {
	kv     KV
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex

	// IDMappings is the temporary-id translation table, keyed kind:tempId.
	IDMappings *Entity[domain.IDMapping]
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp pending mutations.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over kv.
func New(kv KV, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		kv:         kv,
		logger:     logger,
		now:        time.Now,
		IDMappings: NewEntity[domain.IDMapping](kv, prefixIDMapping),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// get decodes the document at key into dest. Returns ErrNotFound if absent.
func (s *Store) get(ctx context.Context, key string, dest any) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return persistence(err, "read "+key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return persistence(err, "decode "+key)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return persistence(err, "encode "+key)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return persistence(err, "write "+key)
	}
	return nil
}

// Books

// SaveBooks replaces the whole book collection.
func (s *Store) SaveBooks(ctx context.Context, books []domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveBooks(ctx, books)
}

func (s *Store) saveBooks(ctx context.Context, books []domain.Book) error {
	if books == nil {
		books = []domain.Book{}
	}
	return s.set(ctx, keyBooks, books)
}

// GetBooks returns the book collection. Returns ErrNotFound if it was never saved.
func (s *Store) GetBooks(ctx context.Context) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBooks(ctx)
}

func (s *Store) getBooks(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := s.get(ctx, keyBooks, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// booksOrEmpty is getBooks with a missing collection read as empty.
func (s *Store) booksOrEmpty(ctx context.Context) ([]domain.Book, error) {
	books, err := s.getBooks(ctx)
	if errors.Is(err, ErrNotFound) {
		return []domain.Book{}, nil
	}
	return books, err
}

// SaveBook inserts or replaces a book by id.
func (s *Store) SaveBook(ctx context.Context, book domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.booksOrEmpty(ctx)
	if err != nil {
		return err
	}
	if i := domain.IndexBook(books, book.ID); i >= 0 {
		books[i] = book
	} else {
		books = append(books, book)
	}
	return s.saveBooks(ctx, books)
}

// GetBook returns the book with id. Returns ErrNotFound if absent.
func (s *Store) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.getBooks(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	i := domain.IndexBook(books, bookID)
	if i < 0 {
		return domain.Book{}, ErrNotFound
	}
	return books[i], nil
}

// DeleteBook removes the book with id and its notes. Idempotent.
func (s *Store) DeleteBook(ctx context.Context, bookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.booksOrEmpty(ctx)
	if err != nil {
		return err
	}
	books = slices.DeleteFunc(books, func(b domain.Book) bool { return b.ID == bookID })
	if err := s.saveBooks(ctx, books); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, notesKey(bookID)); err != nil {
		return persistence(err, "delete notes")
	}
	return nil
}

// ReplaceBook swaps the record stored under oldID for book, keeping its
// position, and moves the notes filed under oldID to book.ID.
func (s *Store) ReplaceBook(ctx context.Context, oldID int64, book domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.booksOrEmpty(ctx)
	if err != nil {
		return err
	}
	books = slices.DeleteFunc(books, func(b domain.Book) bool { return b.ID == book.ID && b.ID != oldID })
	if i := domain.IndexBook(books, oldID); i >= 0 {
		books[i] = book
	} else {
		books = append(books, book)
	}
	if err := s.saveBooks(ctx, books); err != nil {
		return err
	}

	if oldID == book.ID {
		return nil
	}
	return s.moveNotes(ctx, oldID, book.ID)
}

func (s *Store) moveNotes(ctx context.Context, fromID, toID int64) error {
	moved, err := s.notesOrEmpty(ctx, fromID)
	if err != nil || len(moved) == 0 {
		return err
	}
	existing, err := s.notesOrEmpty(ctx, toID)
	if err != nil {
		return err
	}
	for _, n := range moved {
		n.BookID = toID
		if domain.IndexNote(existing, n.ID) < 0 {
			existing = append(existing, n)
		}
	}
	if err := s.set(ctx, notesKey(toID), existing); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, notesKey(fromID)); err != nil {
		return persistence(err, "delete notes")
	}
	return nil
}

// Notes

// SaveNotes replaces the note list of a book.
func (s *Store) SaveNotes(ctx context.Context, bookID int64, notes []domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notes == nil {
		notes = []domain.Note{}
	}
	return s.set(ctx, notesKey(bookID), notes)
}

// GetNotes returns the note list of a book. Returns ErrNotFound if it was never saved.
func (s *Store) GetNotes(ctx context.Context, bookID int64) ([]domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notes []domain.Note
	if err := s.get(ctx, notesKey(bookID), &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *Store) notesOrEmpty(ctx context.Context, bookID int64) ([]domain.Note, error) {
	var notes []domain.Note
	err := s.get(ctx, notesKey(bookID), &notes)
	if errors.Is(err, ErrNotFound) {
		return []domain.Note{}, nil
	}
	return notes, err
}

// SaveNote inserts or replaces a note in its book's list.
func (s *Store) SaveNote(ctx context.Context, note domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.notesOrEmpty(ctx, note.BookID)
	if err != nil {
		return err
	}
	if i := domain.IndexNote(notes, note.ID); i >= 0 {
		notes[i] = note
	} else {
		notes = append(notes, note)
	}
	return s.set(ctx, notesKey(note.BookID), notes)
}

// DeleteNote removes a note from its book's list. Idempotent.
func (s *Store) DeleteNote(ctx context.Context, bookID, noteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.notesOrEmpty(ctx, bookID)
	if err != nil {
		return err
	}
	notes = slices.DeleteFunc(notes, func(n domain.Note) bool { return n.ID == noteID })
	return s.set(ctx, notesKey(bookID), notes)
}

// ReplaceNote swaps the note stored under oldID for note.
func (s *Store) ReplaceNote(ctx context.Context, oldID int64, note domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.notesOrEmpty(ctx, note.BookID)
	if err != nil {
		return err
	}
	notes = slices.DeleteFunc(notes, func(n domain.Note) bool { return n.ID == note.ID && n.ID != oldID })
	if i := domain.IndexNote(notes, oldID); i >= 0 {
		notes[i] = note
	} else {
		notes = append(notes, note)
	}
	return s.set(ctx, notesKey(note.BookID), notes)
}

// Pending mutations

// AddPendingMutation appends m to the queue, assigning its ID and EnqueuedAt
// when unset, and returns the stored entry.
func (s *Store) AddPendingMutation(ctx context.Context, m domain.PendingMutation) (domain.PendingMutation, error) {
	if err := m.Validate(); err != nil {
		return domain.PendingMutation{}, fmt.Errorf("invalid pending mutation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.pendingMutations(ctx)
	if err != nil {
		return domain.PendingMutation{}, err
	}

	if m.ID == "" {
		mutationID, err := id.Generate(id.PrefixMutation)
		if err != nil {
			return domain.PendingMutation{}, err
		}
		m.ID = mutationID
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = s.now().UTC()
	}

	queue = append(queue, m)
	if err := s.set(ctx, keyPendingMutations, queue); err != nil {
		return domain.PendingMutation{}, err
	}

	s.logger.Debug("mutation enqueued", "mutation_id", m.ID, "kind", m.Kind, "queue_len", len(queue))
	return m, nil
}

// PendingMutations returns the queue in enqueue order.
func (s *Store) PendingMutations(ctx context.Context) ([]domain.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingMutations(ctx)
}

func (s *Store) pendingMutations(ctx context.Context) ([]domain.PendingMutation, error) {
	var queue []domain.PendingMutation
	err := s.get(ctx, keyPendingMutations, &queue)
	if errors.Is(err, ErrNotFound) {
		return []domain.PendingMutation{}, nil
	}
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// RemovePendingMutation drops the entry with mutationID. Idempotent.
func (s *Store) RemovePendingMutation(ctx context.Context, mutationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.pendingMutations(ctx)
	if err != nil {
		return err
	}
	queue = slices.DeleteFunc(queue, func(m domain.PendingMutation) bool { return m.ID == mutationID })
	return s.set(ctx, keyPendingMutations, queue)
}

// ClearPendingMutations empties the queue.
func (s *Store) ClearPendingMutations(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(ctx, keyPendingMutations, []domain.PendingMutation{})
}

// Device

// DeviceID returns the persisted installation id, creating it on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deviceID string
	err := s.get(ctx, keyDeviceID, &deviceID)
	if err == nil && deviceID != "" {
		return deviceID, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	deviceID, err = id.NewDeviceID()
	if err != nil {
		return "", err
	}
	if err := s.set(ctx, keyDeviceID, deviceID); err != nil {
		return "", err
	}
	s.logger.Info("generated device id", "device_id", deviceID)
	return deviceID, nil
}

// ID translation

func mappingID(kind domain.EntityKind, tempID int64) string {
	return string(kind) + ":" + FormatID(tempID)
}

// PutIDMapping records that tempID now lives under serverID.
func (s *Store) PutIDMapping(ctx context.Context, m domain.IDMapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	if err := s.IDMappings.Put(ctx, mappingID(m.Kind, m.TempID), &m); err != nil {
		return persistence(err, "write id mapping")
	}
	return nil
}

// ResolveID returns the server id recorded for a temporary id, or the id
// itself when no mapping exists.
func (s *Store) ResolveID(ctx context.Context, kind domain.EntityKind, tempID int64) (int64, error) {
	m, err := s.IDMappings.Get(ctx, mappingID(kind, tempID))
	if errors.Is(err, ErrNotFound) {
		return tempID, nil
	}
	if err != nil {
		return tempID, persistence(err, "read id mapping")
	}
	return m.ServerID, nil
}

// ListIDMappings returns every recorded mapping.
func (s *Store) ListIDMappings(ctx context.Context) ([]domain.IDMapping, error) {
	mappings, err := s.IDMappings.Collect(ctx, "")
	if err != nil {
		return nil, persistence(err, "list id mappings")
	}
	return mappings, nil
}

// DeleteIDMapping forgets a mapping.
func (s *Store) DeleteIDMapping(ctx context.Context, kind domain.EntityKind, tempID int64) error {
	return s.IDMappings.Delete(ctx, mappingID(kind, tempID))
}
