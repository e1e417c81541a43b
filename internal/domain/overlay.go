package domain

// ApplyPendingBooks rebases queued book mutations onto a server snapshot so a
// fetch never hides a local write the server has not acknowledged yet.
// The input slice is not modified.
func ApplyPendingBooks(books []Book, queue []PendingMutation) []Book {
	out := make([]Book, len(books))
	copy(out, books)

	for _, m := range queue {
		switch m.Kind {
		case MutationCreate, MutationUpdate:
			if i := IndexBook(out, m.Book.ID); i >= 0 {
				out[i] = m.Book.Clone()
			} else {
				out = append(out, m.Book.Clone())
			}
		case MutationDelete:
			if i := IndexBook(out, m.BookID); i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
		}
	}
	return out
}

// ApplyPendingBook applies queued mutations to a single book. ok is false
// when the book ends up deleted or never existed.
func ApplyPendingBook(book *Book, id int64, queue []PendingMutation) (Book, bool) {
	var books []Book
	if book != nil {
		books = []Book{*book}
	}
	for _, b := range ApplyPendingBooks(books, queue) {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// ApplyPendingNotes rebases queued note mutations for bookID onto a server snapshot.
func ApplyPendingNotes(bookID int64, notes []Note, queue []PendingMutation) []Note {
	out := make([]Note, len(notes))
	copy(out, notes)

	for _, m := range queue {
		switch m.Kind {
		case MutationCreateNote:
			if m.Note.BookID != bookID {
				continue
			}
			if IndexNote(out, m.Note.ID) < 0 {
				out = append(out, *m.Note)
			}
		case MutationDeleteNote:
			if m.BookID != bookID {
				continue
			}
			if i := IndexNote(out, m.NoteID); i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
		}
	}
	return out
}
