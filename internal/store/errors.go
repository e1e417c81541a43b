package store

import (
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
)

// Sentinel errors. They carry domain codes so callers can match either these
// values or the generic domain sentinels with errors.Is.
var (
	ErrNotFound      = domainerrors.NotFound("record not found")
	ErrAlreadyExists = domainerrors.Conflict("record already exists")
)

// persistence wraps a backend failure as a local persistence error.
func persistence(err error, op string) error {
	return domainerrors.LocalPersistence(err, op)
}
