package syncengine

import (
	"github.com/listenupapp/shelfsync/internal/domain"
)

// Operation is a write intent. Creates may leave the entity id zero; the
// engine assigns a temporary id when the write has to be queued.
type Operation struct {
	Kind   domain.MutationKind
	Book   *domain.Book
	BookID int64
	Note   *domain.Note
	NoteID int64
}

// CreateBook creates book.
func CreateBook(book domain.Book) Operation {
	return Operation{Kind: domain.MutationCreate, Book: &book}
}

// UpdateBook replaces the stored book with the full entity.
func UpdateBook(book domain.Book) Operation {
	return Operation{Kind: domain.MutationUpdate, Book: &book}
}

// DeleteBook deletes a book.
func DeleteBook(bookID int64) Operation {
	return Operation{Kind: domain.MutationDelete, BookID: bookID}
}

// CreateNote adds a note with content to a book.
func CreateNote(bookID int64, content string) Operation {
	return Operation{Kind: domain.MutationCreateNote, Note: &domain.Note{BookID: bookID, Content: content}}
}

// DeleteNote deletes a note.
func DeleteNote(bookID, noteID int64) Operation {
	return Operation{Kind: domain.MutationDeleteNote, BookID: bookID, NoteID: noteID}
}

// mutation converts op into a pending mutation with deep-copied payloads.
func (op Operation) mutation() domain.PendingMutation {
	m := domain.PendingMutation{
		Kind:   op.Kind,
		BookID: op.BookID,
		NoteID: op.NoteID,
	}
	if op.Book != nil {
		b := op.Book.Clone()
		m.Book = &b
	}
	if op.Note != nil {
		n := *op.Note
		m.Note = &n
	}
	return m
}

// Result is the outcome of Submit.
type Result struct {
	Book *domain.Book
	Note *domain.Note
	// Queued is true when the write was stored for later replay.
	Queued bool
}
