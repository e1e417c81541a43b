package querycache

import (
	"strconv"
	"strings"

	"github.com/listenupapp/shelfsync/internal/domain"
)

// Key identifies a cached query. Keys are slash-separated paths whose first
// segment is the collection name, so invalidating a prefix covers every
// query below it.
type Key string

// BooksList is the key of the full book list.
func BooksList() Key { return Key(domain.CollectionBooks) + "/list" }

// BookDetail is the key of a single book.
func BookDetail(bookID int64) Key {
	return Key(domain.CollectionBooks) + "/detail/" + Key(strconv.FormatInt(bookID, 10))
}

// NotesList is the key of a book's note list.
func NotesList(bookID int64) Key {
	return Key(domain.CollectionNotes) + "/list/" + Key(strconv.FormatInt(bookID, 10))
}

// Matches reports whether k equals pattern or lies below it.
func (k Key) Matches(pattern Key) bool {
	if pattern == "" || k == pattern {
		return true
	}
	return strings.HasPrefix(string(k), string(pattern)+"/")
}

// EditionCount is the key of a book's OpenLibrary edition count. It is not
// part of a synced collection and is only refreshed when stale.
func EditionCount(bookID int64) Key {
	return "editions/" + Key(strconv.FormatInt(bookID, 10))
}
