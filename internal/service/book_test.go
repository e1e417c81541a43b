package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/store"
	"github.com/listenupapp/shelfsync/internal/validation"
)

func setupBookService(t *testing.T) *BookService {
	t.Helper()
	kv, err := store.OpenBadgerInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	s := NewBookService(kv, validation.New(), nil)
	s.now = func() time.Time { return time.Date(2024, 5, 4, 10, 30, 0, 0, time.UTC) }
	return s
}

func newBook(name string) domain.Book {
	return domain.Book{Name: name, Author: "Author", Editor: "Editor", Year: 2001}
}

func TestBookService_CreateAssignsSequentialIDs(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	first, err := s.CreateBook(ctx, newBook("Dune"), "")
	require.NoError(t, err)
	second, err := s.CreateBook(ctx, newBook("Emma"), "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestBookService_CreateIsIdempotentByKey(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	first, err := s.CreateBook(ctx, newBook("Dune"), "mut-abc")
	require.NoError(t, err)
	again, err := s.CreateBook(ctx, newBook("Dune"), "mut-abc")
	require.NoError(t, err)

	assert.Equal(t, first, again)
	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestBookService_CreateValidates(t *testing.T) {
	s := setupBookService(t)

	b := newBook("  ")
	_, err := s.CreateBook(t.Context(), b, "")
	require.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestBookService_ListInIDOrder(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	for i := range 12 {
		_, err := s.CreateBook(ctx, newBook("Book "+string(rune('A'+i))), "")
		require.NoError(t, err)
	}

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 12)
	for i, b := range books {
		assert.Equal(t, int64(i+1), b.ID)
	}
}

func TestBookService_ListEmpty(t *testing.T) {
	s := setupBookService(t)

	books, err := s.ListBooks(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestBookService_UpdateReplacesWholeRecord(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	created, err := s.CreateBook(ctx, newBook("Dune"), "")
	require.NoError(t, err)

	replacement := newBook("Dune Messiah")
	replacement.ID = 999 // path id wins
	replacement.Favorite = true
	updated, err := s.UpdateBook(ctx, created.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := s.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Name)
	assert.True(t, got.Favorite)
}

func TestBookService_UpdateMissing(t *testing.T) {
	s := setupBookService(t)

	_, err := s.UpdateBook(t.Context(), 42, newBook("Ghost"))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestBookService_DeleteRemovesNotes(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	book, err := s.CreateBook(ctx, newBook("Dune"), "")
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, book.ID, domain.NoteInput{Content: "great"}, "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteBook(ctx, book.ID))

	_, err = s.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	_, err = s.ListNotes(ctx, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	err = s.DeleteBook(ctx, book.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestBookService_Notes(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	book, err := s.CreateBook(ctx, newBook("Dune"), "")
	require.NoError(t, err)

	first, err := s.CreateNote(ctx, book.ID, domain.NoteInput{Content: "first"}, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-04T10:30:00.000Z", first.DateISO)

	second, err := s.CreateNote(ctx, book.ID, domain.NoteInput{Content: "second", DateISO: "2023-01-01T00:00:00.000Z"}, "")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01T00:00:00.000Z", second.DateISO)

	notes, err := s.ListNotes(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Content)

	require.NoError(t, s.DeleteNote(ctx, book.ID, first.ID))
	notes, err = s.ListNotes(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, second.ID, notes[0].ID)

	assert.ErrorIs(t, s.DeleteNote(ctx, book.ID, first.ID), domainerrors.ErrNotFound)
}

func TestBookService_CreateNoteIdempotent(t *testing.T) {
	s := setupBookService(t)
	ctx := t.Context()

	book, err := s.CreateBook(ctx, newBook("Dune"), "")
	require.NoError(t, err)

	a, err := s.CreateNote(ctx, book.ID, domain.NoteInput{Content: "once"}, "mut-note")
	require.NoError(t, err)
	b, err := s.CreateNote(ctx, book.ID, domain.NoteInput{Content: "once"}, "mut-note")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	notes, err := s.ListNotes(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestBookService_CreateNoteRequiresBook(t *testing.T) {
	s := setupBookService(t)

	_, err := s.CreateNote(t.Context(), 5, domain.NoteInput{Content: "orphan"}, "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
