package store

import "strconv"

// Keys used by the local store. Collections are stored whole as JSON arrays.
const (
	keyBooks            = "@books"
	keyNotesPrefix      = "@notes_"
	keyPendingMutations = "@pending_mutations"
	keyDeviceID         = "@device_id"

	prefixIDMapping = "idmap:"
)

func notesKey(bookID int64) string {
	return keyNotesPrefix + strconv.FormatInt(bookID, 10)
}

// FormatID renders an int64 id as an entity key suffix.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
