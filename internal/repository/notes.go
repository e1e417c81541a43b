package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/querycache"
	"github.com/listenupapp/shelfsync/internal/syncengine"
)

// Notes reads and writes the notes of books.
type Notes struct {
	base
}

// NewNotes creates the note repository.
func NewNotes(d Deps, logger *slog.Logger) *Notes {
	return &Notes{base: newBase(d, logger)}
}

// FetchNotes loads the notes of a book, falling back to the local copy.
func (n *Notes) FetchNotes(ctx context.Context, bookID int64) ([]domain.Note, error) {
	bookID = n.resolve(ctx, domain.KindBook, bookID)
	v, err := n.cache.Fetch(ctx, querycache.NotesList(bookID), n.load(bookID))
	if err != nil {
		return nil, err
	}
	notes, _ := v.([]domain.Note)
	return notes, nil
}

// ReadNotes returns the cached notes of a book and refreshes them in the
// background when stale.
func (n *Notes) ReadNotes(bookID int64) querycache.Result {
	return n.cache.Read(querycache.NotesList(bookID), n.load(bookID))
}

func (n *Notes) load(bookID int64) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		notes, err := n.remote.ListNotes(ctx, bookID)
		if err == nil {
			merged := domain.ApplyPendingNotes(bookID, notes, n.pending(ctx))
			if err := n.local.SaveNotes(context.WithoutCancel(ctx), bookID, merged); err != nil {
				n.logger.Warn("failed to persist notes", "book_id", bookID, "error", err)
			}
			return merged, nil
		}

		n.logger.Info("notes unavailable from server, using local copy", "book_id", bookID, "error", err)
		queue := n.pending(ctx)
		local, lerr := n.local.GetNotes(ctx, bookID)
		switch {
		case lerr == nil:
			return domain.ApplyPendingNotes(bookID, local, queue), nil
		case errors.Is(lerr, domainerrors.ErrNotFound) && touchesBook(queue, bookID):
			// A book created offline has no stored note list yet.
			return domain.ApplyPendingNotes(bookID, []domain.Note{}, queue), nil
		default:
			return nil, fallback(err, lerr, "notes")
		}
	}
}

func touchesBook(queue []domain.PendingMutation, bookID int64) bool {
	for _, m := range queue {
		if m.TargetBookID() == bookID {
			return true
		}
	}
	return false
}

// CreateNote adds a note to a book. Offline the note carries a temporary id.
func (n *Notes) CreateNote(ctx context.Context, bookID int64, content string) (domain.Note, error) {
	if err := n.validator.Validate(domain.NoteInput{Content: content}); err != nil {
		return domain.Note{}, err
	}

	res, err := n.engine.Submit(ctx, syncengine.CreateNote(bookID, content))
	if err != nil {
		return domain.Note{}, err
	}
	note := *res.Note

	patchList(n.cache, querycache.NotesList(note.BookID), func(list []domain.Note) []domain.Note {
		if domain.IndexNote(list, note.ID) < 0 {
			list = append(list, note)
		}
		return list
	})
	n.cache.Invalidate(querycache.NotesList(note.BookID))
	return note, nil
}

// DeleteNote removes a note.
func (n *Notes) DeleteNote(ctx context.Context, bookID, noteID int64) error {
	var snaps snapshots
	snaps.add(patchList(n.cache, querycache.NotesList(bookID), func(list []domain.Note) []domain.Note {
		if i := domain.IndexNote(list, noteID); i >= 0 {
			list = append(list[:i], list[i+1:]...)
		}
		return list
	}))

	if _, err := n.engine.Submit(ctx, syncengine.DeleteNote(bookID, noteID)); err != nil {
		snaps.rollback(n.cache)
		return err
	}
	snaps.commit(n.cache)
	n.cache.Invalidate(querycache.NotesList(bookID))
	return nil
}
