package domain

import "time"

// EntityKind distinguishes id spaces in the translation table.
type EntityKind string

// Entity kinds.
const (
	KindBook EntityKind = "book"
	KindNote EntityKind = "note"
)

// IDMapping records that a temporary client id was replaced by a server id
// when its create replayed. Queued mutations still naming the temporary id
// are translated through it at replay time.
type IDMapping struct {
	Kind      EntityKind `json:"kind"`
	TempID    int64      `json:"tempId"`
	ServerID  int64      `json:"serverId"`
	CreatedAt time.Time  `json:"createdAt"`
}

// IDTable is an in-memory view of the translation table.
type IDTable map[EntityKind]map[int64]int64

// NewIDTable indexes mappings by kind and temporary id.
func NewIDTable(mappings []IDMapping) IDTable {
	t := make(IDTable, 2)
	for _, m := range mappings {
		if t[m.Kind] == nil {
			t[m.Kind] = make(map[int64]int64)
		}
		t[m.Kind][m.TempID] = m.ServerID
	}
	return t
}

// Resolve returns the server id recorded for v, or v itself.
func (t IDTable) Resolve(kind EntityKind, v int64) int64 {
	if server, ok := t[kind][v]; ok {
		return server
	}
	return v
}
