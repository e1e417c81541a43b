package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook(id int64) Book {
	return Book{ID: id, Name: "Dune", Author: "Frank Herbert", Editor: "Chilton", Year: 1965, Rating: 4}
}

func TestBook_Toggled(t *testing.T) {
	b := testBook(1)

	fav, err := b.Toggled(ToggleFavorite)
	require.NoError(t, err)
	assert.True(t, fav.Favorite)
	assert.False(t, b.Favorite, "receiver must not change")

	read, err := fav.Toggled(ToggleRead)
	require.NoError(t, err)
	assert.True(t, read.Read)
	assert.True(t, read.Favorite)

	_, err = b.Toggled("rating")
	assert.Error(t, err)
}

func TestBook_CloneCopiesCover(t *testing.T) {
	b := testBook(1).WithCover("https://example.test/a.jpg")
	c := b.Clone()
	*c.Cover = "changed"

	assert.Equal(t, "https://example.test/a.jpg", *b.Cover)
	assert.True(t, b.HasCover())
	assert.False(t, testBook(2).HasCover())
}

func TestBook_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(testBook(7))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "name", "author", "editor", "year", "read", "favorite", "rating", "cover", "theme"} {
		assert.Contains(t, fields, key)
	}
	assert.Nil(t, fields["cover"])
}

func TestNewNote_DateFormat(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.FixedZone("CET", 3600))
	n := NewNote(5, 1, "great", at)

	assert.Equal(t, "2024-03-09T13:05:07.123Z", n.DateISO)
}

func TestPendingMutation_Validate(t *testing.T) {
	b := testBook(1)
	note := NewNote(9, 1, "x", time.Now())

	assert.NoError(t, PendingMutation{Kind: MutationUpdate, Book: &b}.Validate())
	assert.NoError(t, PendingMutation{Kind: MutationDelete, BookID: 1}.Validate())
	assert.NoError(t, PendingMutation{Kind: MutationCreateNote, Note: &note}.Validate())
	assert.NoError(t, PendingMutation{Kind: MutationDeleteNote, BookID: 1, NoteID: 9}.Validate())

	assert.Error(t, PendingMutation{Kind: MutationCreate}.Validate())
	assert.Error(t, PendingMutation{Kind: MutationDeleteNote, BookID: 1}.Validate())
	assert.Error(t, PendingMutation{Kind: "toggle"}.Validate())
}

func TestPendingMutation_DependsOn(t *testing.T) {
	b1, b2 := testBook(1), testBook(2)
	temp := testBook(1_700_000_000_000)
	note := NewNote(50, temp.ID, "draft", time.Now())

	updateB1 := PendingMutation{Kind: MutationUpdate, Book: &b1}
	deleteB1 := PendingMutation{Kind: MutationDelete, BookID: 1}
	updateB2 := PendingMutation{Kind: MutationUpdate, Book: &b2}
	createTemp := PendingMutation{Kind: MutationCreate, Book: &temp}
	createNote := PendingMutation{Kind: MutationCreateNote, Note: &note}
	deleteNote := PendingMutation{Kind: MutationDeleteNote, BookID: temp.ID, NoteID: 50}

	assert.True(t, deleteB1.DependsOn(updateB1))
	assert.False(t, updateB2.DependsOn(updateB1))
	assert.True(t, createNote.DependsOn(createTemp), "note on an unacknowledged book waits for the book")
	assert.True(t, deleteNote.DependsOn(createNote))
	assert.False(t, createNote.DependsOn(updateB1))
}

func TestAffectedCollections(t *testing.T) {
	b := testBook(1)
	note := NewNote(2, 1, "x", time.Now())
	got := AffectedCollections([]PendingMutation{
		{Kind: MutationUpdate, Book: &b},
		{Kind: MutationCreateNote, Note: &note},
		{Kind: MutationDelete, BookID: 1},
	})
	assert.Equal(t, []Collection{CollectionBooks, CollectionNotes}, got)
	assert.Empty(t, AffectedCollections(nil))
}

func TestApplyPendingBooks(t *testing.T) {
	server := []Book{testBook(1), testBook(2)}

	fav, _ := testBook(1).Toggled(ToggleFavorite)
	created := testBook(1_700_000_000_000)
	queue := []PendingMutation{
		{Kind: MutationUpdate, Book: &fav},
		{Kind: MutationDelete, BookID: 2},
		{Kind: MutationCreate, Book: &created},
	}

	got := ApplyPendingBooks(server, queue)

	require.Len(t, got, 2)
	assert.True(t, got[0].Favorite)
	assert.Equal(t, created.ID, got[1].ID)
	assert.False(t, server[0].Favorite, "input must not change")
	assert.Len(t, server, 2)
}

func TestApplyPendingBook(t *testing.T) {
	b := testBook(3)
	read, _ := b.Toggled(ToggleRead)

	got, ok := ApplyPendingBook(&b, 3, []PendingMutation{{Kind: MutationUpdate, Book: &read}})
	require.True(t, ok)
	assert.True(t, got.Read)

	_, ok = ApplyPendingBook(&b, 3, []PendingMutation{{Kind: MutationDelete, BookID: 3}})
	assert.False(t, ok)

	_, ok = ApplyPendingBook(nil, 3, nil)
	assert.False(t, ok)
}

func TestApplyPendingNotes_NoDuplicateAfterReplay(t *testing.T) {
	temp := NewNote(1_700_000_000_000, 1, "offline note", time.Now())
	serverNote := Note{ID: 12, BookID: 1, Content: "offline note", DateISO: temp.DateISO}

	// While queued, the temp note is shown on top of the server list.
	queued := ApplyPendingNotes(1, []Note{}, []PendingMutation{{Kind: MutationCreateNote, Note: &temp}})
	require.Len(t, queued, 1)
	assert.Equal(t, temp.ID, queued[0].ID)

	// Once replayed the queue is empty and only the server note remains.
	replayed := ApplyPendingNotes(1, []Note{serverNote}, nil)
	assert.Equal(t, []Note{serverNote}, replayed)
}

func TestApplyPendingNotes_IgnoresOtherBooks(t *testing.T) {
	other := NewNote(5, 2, "elsewhere", time.Now())
	notes := []Note{{ID: 7, BookID: 1, Content: "keep"}}

	got := ApplyPendingNotes(1, notes, []PendingMutation{
		{Kind: MutationCreateNote, Note: &other},
		{Kind: MutationDeleteNote, BookID: 2, NoteID: 7},
	})
	assert.Equal(t, notes, got)

	got = ApplyPendingNotes(1, notes, []PendingMutation{{Kind: MutationDeleteNote, BookID: 1, NoteID: 7}})
	assert.Empty(t, got)
}

func TestResolveQueue_TranslatesReferencesAndOwnIDs(t *testing.T) {
	const tempBook, serverBook = 1700000000001, 42
	const tempNote, serverNote = 1700000000002, 43
	ids := NewIDTable([]IDMapping{
		{Kind: KindBook, TempID: tempBook, ServerID: serverBook},
		{Kind: KindNote, TempID: tempNote, ServerID: serverNote},
	})

	created := testBook(tempBook)
	updated := testBook(tempBook)
	updated.Favorite = true
	note := NewNote(tempNote, tempBook, "margin", time.Now())
	queue := []PendingMutation{
		{ID: "mut-1", Kind: MutationCreate, Book: &created},
		{ID: "mut-2", Kind: MutationUpdate, Book: &updated},
		{ID: "mut-3", Kind: MutationCreateNote, Note: &note},
		{ID: "mut-4", Kind: MutationDeleteNote, BookID: tempBook, NoteID: tempNote},
		{ID: "mut-5", Kind: MutationDelete, BookID: 7},
	}

	got := ResolveQueue(queue, ids)
	require.Len(t, got, 5)
	assert.Equal(t, int64(serverBook), got[0].Book.ID)
	assert.Equal(t, int64(serverBook), got[1].Book.ID)
	assert.Equal(t, int64(serverBook), got[2].Note.BookID)
	assert.Equal(t, int64(serverNote), got[2].Note.ID)
	assert.Equal(t, int64(serverBook), got[3].BookID)
	assert.Equal(t, int64(serverNote), got[3].NoteID)
	assert.Equal(t, int64(7), got[4].BookID)

	// The stored entries keep their temporary ids.
	assert.Equal(t, int64(tempBook), queue[1].Book.ID)
	assert.Equal(t, int64(tempBook), queue[2].Note.BookID)
	assert.Equal(t, int64(tempNote), queue[3].NoteID)
}

func TestWithResolvedRefs_KeepsCreateID(t *testing.T) {
	ids := NewIDTable([]IDMapping{{Kind: KindBook, TempID: 5, ServerID: 9}})
	b := testBook(5)

	m := PendingMutation{Kind: MutationCreate, Book: &b}.WithResolvedRefs(ids.Resolve)
	assert.Equal(t, int64(5), m.Book.ID)
	assert.Equal(t, int64(9), PendingMutation{Kind: MutationCreate, Book: &b}.Resolved(ids.Resolve).Book.ID)
}

func TestApplyPendingBooks_ResolvedQueueReplacesServerRecord(t *testing.T) {
	ids := NewIDTable([]IDMapping{{Kind: KindBook, TempID: 1700000000001, ServerID: 1}})
	server := []Book{testBook(1)}
	fav := testBook(1700000000001)
	fav.Favorite = true
	queue := []PendingMutation{{ID: "mut-1", Kind: MutationUpdate, Book: &fav}}

	got := ApplyPendingBooks(server, ResolveQueue(queue, ids))
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.True(t, got[0].Favorite)
}
