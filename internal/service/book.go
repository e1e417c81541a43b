// Package service provides the business logic of the book server: books,
// their notes and replay-safe creation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/store"
)

// Key prefixes of the server's records.
const (
	prefixBook        = "srv:book:"
	prefixNote        = "srv:note:"
	prefixIdempotency = "srv:idem:"
	keySequence       = "srv:seq"
)

// Validator checks struct constraints.
type Validator interface {
	Validate(s any) error
}

// idempotencyRecord remembers what a create with a given key produced.
type idempotencyRecord struct {
	Kind      domain.EntityKind `json:"kind"`
	BookID    int64             `json:"bookId"`
	NoteID    int64             `json:"noteId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// BookService orchestrates book and note operations.
type BookService struct {
	kv          store.KV
	books       *store.Entity[domain.Book]
	notes       *store.Entity[domain.Note]
	idempotency *store.Entity[idempotencyRecord]
	validator   Validator
	logger      *slog.Logger
	now         func() time.Time

	// writeMu serializes id allocation with idempotency lookups.
	writeMu sync.Mutex
}

// NewBookService creates a new book service.
func NewBookService(kv store.KV, validator Validator, logger *slog.Logger) *BookService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BookService{
		kv:          kv,
		books:       store.NewEntity[domain.Book](kv, prefixBook),
		notes:       store.NewEntity[domain.Note](kv, prefixNote),
		idempotency: store.NewEntity[idempotencyRecord](kv, prefixIdempotency),
		validator:   validator,
		logger:      logger,
		now:         time.Now,
	}
}

// recordKey pads ids so key order is numeric order.
func recordKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func noteKey(bookID, noteID int64) string {
	return recordKey(bookID) + ":" + recordKey(noteID)
}

// nextID allocates the next record id. Callers hold writeMu.
func (s *BookService) nextID(ctx context.Context) (int64, error) {
	var last int64
	raw, err := s.kv.Get(ctx, keySequence)
	switch {
	case err == nil:
		last, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt id sequence: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("read id sequence: %w", err)
	}

	next := last + 1
	if err := s.kv.Set(ctx, keySequence, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, fmt.Errorf("write id sequence: %w", err)
	}
	return next, nil
}

// ListBooks returns every book in id order.
func (s *BookService) ListBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := s.books.Collect(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// GetBook returns a book by id.
func (s *BookService) GetBook(ctx context.Context, bookID int64) (domain.Book, error) {
	book, err := s.books.Get(ctx, recordKey(bookID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Book{}, domainerrors.NotFoundf("book %d not found", bookID)
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	return *book, nil
}

// CreateBook stores a new book under a fresh id. A repeated call with the
// same non-empty idempotency key returns the book created the first time.
func (s *BookService) CreateBook(ctx context.Context, book domain.Book, idempotencyKey string) (domain.Book, error) {
	if err := s.validator.Validate(book); err != nil {
		return domain.Book{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if rec, ok := s.replayed(ctx, idempotencyKey); ok {
		s.logger.Info("replayed book creation", "idempotency_key", idempotencyKey, "book_id", rec.BookID)
		return s.GetBook(ctx, rec.BookID)
	}

	bookID, err := s.nextID(ctx)
	if err != nil {
		return domain.Book{}, err
	}
	book.ID = bookID
	if err := s.books.Create(ctx, recordKey(bookID), &book); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	s.remember(ctx, idempotencyKey, idempotencyRecord{Kind: domain.KindBook, BookID: bookID})

	s.logger.Info("book created", "book_id", bookID, "name", book.Name)
	return book, nil
}

// UpdateBook replaces the book at bookID with book.
func (s *BookService) UpdateBook(ctx context.Context, bookID int64, book domain.Book) (domain.Book, error) {
	book.ID = bookID
	if err := s.validator.Validate(book); err != nil {
		return domain.Book{}, err
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return domain.Book{}, err
	}
	if err := s.books.Put(ctx, recordKey(bookID), &book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	s.logger.Debug("book updated", "book_id", bookID)
	return book, nil
}

// DeleteBook removes a book and its notes.
func (s *BookService) DeleteBook(ctx context.Context, bookID int64) error {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return err
	}
	notes, err := s.notes.Collect(ctx, recordKey(bookID)+":")
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	for _, n := range notes {
		if err := s.notes.Delete(ctx, noteKey(bookID, n.ID)); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
	}
	if err := s.books.Delete(ctx, recordKey(bookID)); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.logger.Info("book deleted", "book_id", bookID, "notes", len(notes))
	return nil
}

// ListNotes returns the notes of a book in creation order.
func (s *BookService) ListNotes(ctx context.Context, bookID int64) ([]domain.Note, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	notes, err := s.notes.Collect(ctx, recordKey(bookID)+":")
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return notes, nil
}

// CreateNote adds a note to a book. DateISO defaults to the current time.
func (s *BookService) CreateNote(ctx context.Context, bookID int64, input domain.NoteInput, idempotencyKey string) (domain.Note, error) {
	if err := s.validator.Validate(input); err != nil {
		return domain.Note{}, err
	}
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return domain.Note{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if rec, ok := s.replayed(ctx, idempotencyKey); ok {
		note, err := s.notes.Get(ctx, noteKey(rec.BookID, rec.NoteID))
		if err == nil {
			s.logger.Info("replayed note creation", "idempotency_key", idempotencyKey, "note_id", rec.NoteID)
			return *note, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Note{}, fmt.Errorf("get note: %w", err)
		}
		// The note was deleted since; create it again.
	}

	noteID, err := s.nextID(ctx)
	if err != nil {
		return domain.Note{}, err
	}
	note := domain.Note{ID: noteID, BookID: bookID, Content: input.Content, DateISO: input.DateISO}
	if note.DateISO == "" {
		note.DateISO = domain.FormatISO(s.now())
	}
	if err := s.notes.Create(ctx, noteKey(bookID, noteID), &note); err != nil {
		return domain.Note{}, fmt.Errorf("create note: %w", err)
	}
	s.remember(ctx, idempotencyKey, idempotencyRecord{Kind: domain.KindNote, BookID: bookID, NoteID: noteID})

	s.logger.Info("note created", "book_id", bookID, "note_id", noteID)
	return note, nil
}

// DeleteNote removes a note.
func (s *BookService) DeleteNote(ctx context.Context, bookID, noteID int64) error {
	_, err := s.notes.Get(ctx, noteKey(bookID, noteID))
	if errors.Is(err, store.ErrNotFound) {
		return domainerrors.NotFoundf("note %d of book %d not found", noteID, bookID)
	}
	if err != nil {
		return fmt.Errorf("get note: %w", err)
	}
	if err := s.notes.Delete(ctx, noteKey(bookID, noteID)); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// Ping checks that the store answers.
func (s *BookService) Ping(ctx context.Context) error {
	_, err := s.kv.Keys(ctx, keySequence)
	return err
}

func (s *BookService) replayed(ctx context.Context, key string) (idempotencyRecord, bool) {
	if key == "" {
		return idempotencyRecord{}, false
	}
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("idempotency lookup failed", "idempotency_key", key, "error", err)
		}
		return idempotencyRecord{}, false
	}
	return *rec, true
}

func (s *BookService) remember(ctx context.Context, key string, rec idempotencyRecord) {
	if key == "" {
		return
	}
	rec.CreatedAt = s.now().UTC()
	if err := s.idempotency.Put(ctx, key, &rec); err != nil {
		s.logger.Warn("failed to record idempotency key", "idempotency_key", key, "error", err)
	}
}
