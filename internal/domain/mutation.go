package domain

import (
	"fmt"
	"slices"
	"time"
)

// Collection names a cached record collection. The sync engine publishes the
// collections touched by a drain so caches can invalidate them.
type Collection string

// Collections.
const (
	CollectionBooks Collection = "books"
	CollectionNotes Collection = "notes"
)

// MutationKind is the operation a pending mutation replays.
type MutationKind string

// Mutation kinds.
const (
	MutationCreate     MutationKind = "create"
	MutationUpdate     MutationKind = "update"
	MutationDelete     MutationKind = "delete"
	MutationCreateNote MutationKind = "createNote"
	MutationDeleteNote MutationKind = "deleteNote"
)

// Valid reports whether k is a known kind.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationCreate, MutationUpdate, MutationDelete, MutationCreateNote, MutationDeleteNote:
		return true
	}
	return false
}

// PendingMutation is a write recorded while the server could not be reached.
// Entries are replayed oldest first and removed by ID once acknowledged; they
// are never edited in place.
type PendingMutation struct {
	ID         string       `json:"id"`
	Kind       MutationKind `json:"type"`
	Book       *Book        `json:"book,omitempty"`
	BookID     int64        `json:"bookId,omitempty"`
	Note       *Note        `json:"note,omitempty"`
	NoteID     int64        `json:"noteId,omitempty"`
	EnqueuedAt time.Time    `json:"enqueuedAt"`
}

// Validate checks that the payload required by the kind is present.
func (m PendingMutation) Validate() error {
	switch m.Kind {
	case MutationCreate, MutationUpdate:
		if m.Book == nil {
			return fmt.Errorf("%s mutation requires a book", m.Kind)
		}
	case MutationDelete:
		if m.BookID == 0 {
			return fmt.Errorf("delete mutation requires a book id")
		}
	case MutationCreateNote:
		if m.Note == nil {
			return fmt.Errorf("createNote mutation requires a note")
		}
	case MutationDeleteNote:
		if m.BookID == 0 || m.NoteID == 0 {
			return fmt.Errorf("deleteNote mutation requires book and note ids")
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

// Collection returns the collection the mutation writes to.
func (m PendingMutation) Collection() Collection {
	switch m.Kind {
	case MutationCreateNote, MutationDeleteNote:
		return CollectionNotes
	default:
		return CollectionBooks
	}
}

// TargetBookID returns the book the mutation writes or, for note mutations,
// the book the note belongs to.
func (m PendingMutation) TargetBookID() int64 {
	switch m.Kind {
	case MutationCreate, MutationUpdate:
		return m.Book.ID
	case MutationCreateNote:
		return m.Note.BookID
	default:
		return m.BookID
	}
}

// TargetNoteID returns the note written by a note mutation, or 0.
func (m PendingMutation) TargetNoteID() int64 {
	switch m.Kind {
	case MutationCreateNote:
		return m.Note.ID
	case MutationDeleteNote:
		return m.NoteID
	default:
		return 0
	}
}

// DependsOn reports whether m must not be applied before prior: both write
// the same record, or prior creates the book m refers to.
func (m PendingMutation) DependsOn(prior PendingMutation) bool {
	if m.Collection() == prior.Collection() {
		if m.Collection() == CollectionBooks {
			return m.TargetBookID() == prior.TargetBookID()
		}
		return m.TargetNoteID() == prior.TargetNoteID()
	}
	return prior.Kind == MutationCreate && prior.Book.ID == m.TargetBookID()
}

// ResolveFunc maps a possibly temporary id to its server id. Ids without a
// mapping are returned unchanged.
type ResolveFunc func(kind EntityKind, v int64) int64

// WithResolvedRefs returns a copy of m whose references to other records use
// server ids. The id a create assigned to its own record is kept, since that
// is what the server deduplicates and the mapping is keyed on.
func (m PendingMutation) WithResolvedRefs(resolve ResolveFunc) PendingMutation {
	switch m.Kind {
	case MutationUpdate:
		b := m.Book.Clone()
		b.ID = resolve(KindBook, b.ID)
		m.Book = &b
	case MutationDelete:
		m.BookID = resolve(KindBook, m.BookID)
	case MutationCreateNote:
		n := *m.Note
		n.BookID = resolve(KindBook, n.BookID)
		m.Note = &n
	case MutationDeleteNote:
		m.BookID = resolve(KindBook, m.BookID)
		m.NoteID = resolve(KindNote, m.NoteID)
	}
	return m
}

// Resolved returns a copy of m with every temporary id translated, including
// a create's own record id. Use it to compare m with server snapshots or with
// writes issued after the create replayed.
func (m PendingMutation) Resolved(resolve ResolveFunc) PendingMutation {
	m = m.WithResolvedRefs(resolve)
	switch m.Kind {
	case MutationCreate:
		b := m.Book.Clone()
		b.ID = resolve(KindBook, b.ID)
		m.Book = &b
	case MutationCreateNote:
		n := *m.Note
		n.ID = resolve(KindNote, n.ID)
		m.Note = &n
	}
	return m
}

// ResolveQueue returns the queue with every entry passed through Resolved.
// The input is not modified.
func ResolveQueue(queue []PendingMutation, t IDTable) []PendingMutation {
	if len(queue) == 0 {
		return queue
	}
	out := make([]PendingMutation, len(queue))
	for i, m := range queue {
		out[i] = m.Resolved(t.Resolve)
	}
	return out
}

// AffectedCollections returns the distinct collections written by mutations, in first-seen order.
func AffectedCollections(mutations []PendingMutation) []Collection {
	var out []Collection
	for _, m := range mutations {
		if c := m.Collection(); !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
