// Package domain contains the records shelfsync keeps in sync (books and their
// notes) together with the pending mutations that carry offline writes.
package domain

import (
	"fmt"
)

// Book is a book in the user's shelf. Field names match the server's JSON.
type Book struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name" validate:"notblank,max=500"`
	Author   string  `json:"author" validate:"notblank,max=500"`
	Editor   string  `json:"editor" validate:"notblank,max=500"`
	Year     int     `json:"year" validate:"gte=0"`
	Read     bool    `json:"read"`
	Favorite bool    `json:"favorite"`
	Rating   int     `json:"rating" validate:"gte=0,lte=5"`
	Cover    *string `json:"cover"`
	Theme    string  `json:"theme"`
}

// ToggleField names a boolean Book field that can be flipped in place.
type ToggleField string

// Toggleable fields.
const (
	ToggleFavorite ToggleField = "favorite"
	ToggleRead     ToggleField = "read"
)

// Valid reports whether f names a toggleable field.
func (f ToggleField) Valid() bool {
	return f == ToggleFavorite || f == ToggleRead
}

// Toggled returns a copy of b with field flipped.
func (b Book) Toggled(field ToggleField) (Book, error) {
	switch field {
	case ToggleFavorite:
		b.Favorite = !b.Favorite
	case ToggleRead:
		b.Read = !b.Read
	default:
		return b, fmt.Errorf("unknown toggle field %q", field)
	}
	return b, nil
}

// HasCover reports whether the book carries a non-empty cover URL.
func (b Book) HasCover() bool {
	return b.Cover != nil && *b.Cover != ""
}

// WithCover returns a copy of b pointing at url.
func (b Book) WithCover(url string) Book {
	b.Cover = &url
	return b
}

// Clone returns a deep copy of b.
func (b Book) Clone() Book {
	if b.Cover != nil {
		c := *b.Cover
		b.Cover = &c
	}
	return b
}

// IndexBook returns the position of the book with id in books, or -1.
func IndexBook(books []Book, id int64) int {
	for i := range books {
		if books[i].ID == id {
			return i
		}
	}
	return -1
}
