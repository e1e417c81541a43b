package domain

import "time"

// ISOLayout is the timestamp format used for Note.DateISO: UTC with millisecond precision.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Note is a free-text note attached to a book.
type Note struct {
	ID      int64  `json:"id"`
	BookID  int64  `json:"bookId" validate:"required"`
	Content string `json:"content" validate:"notblank,max=10000"`
	DateISO string `json:"dateISO"`
}

// NoteInput is the body of a note creation request.
type NoteInput struct {
	Content string `json:"content" validate:"notblank,max=10000"`
	DateISO string `json:"dateISO,omitempty"`
}

// NewNote builds a note stamped with at.
func NewNote(id, bookID int64, content string, at time.Time) Note {
	return Note{
		ID:      id,
		BookID:  bookID,
		Content: content,
		DateISO: FormatISO(at),
	}
}

// FormatISO formats t as a Note timestamp.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// IndexNote returns the position of the note with id in notes, or -1.
func IndexNote(notes []Note, id int64) int {
	for i := range notes {
		if notes[i].ID == id {
			return i
		}
	}
	return -1
}
