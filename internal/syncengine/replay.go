package syncengine

import (
	"context"
	"net/http"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/remote"
)

// translate rewrites temporary ids in a copy of m to the server ids recorded
// when their creates replayed. The queued entry itself is never modified.
func (e *Engine) translate(ctx context.Context, m domain.PendingMutation) domain.PendingMutation {
	return m.WithResolvedRefs(func(kind domain.EntityKind, v int64) int64 {
		if v == 0 {
			return 0
		}
		resolved, err := e.store.ResolveID(ctx, kind, v)
		if err != nil {
			e.logger.Warn("id translation unavailable", "kind", kind, "id", v, "error", err)
			return v
		}
		return resolved
	})
}

// idTable loads the translation table. On failure an empty table is returned
// and ids are compared as stored.
func (e *Engine) idTable(ctx context.Context) domain.IDTable {
	mappings, err := e.store.ListIDMappings(ctx)
	if err != nil {
		e.logger.Warn("failed to list id mappings", "error", err)
	}
	return domain.NewIDTable(mappings)
}

// alreadyCreated reports whether a queued create was acknowledged before,
// which happens when the process stopped between the server answer and the
// queue removal.
func (e *Engine) alreadyCreated(ctx context.Context, m domain.PendingMutation) bool {
	var kind domain.EntityKind
	var tempID int64
	switch m.Kind {
	case domain.MutationCreate:
		kind, tempID = domain.KindBook, m.Book.ID
	case domain.MutationCreateNote:
		kind, tempID = domain.KindNote, m.Note.ID
	default:
		return false
	}
	if tempID == 0 {
		return false
	}
	resolved, err := e.store.ResolveID(ctx, kind, tempID)
	return err == nil && resolved != tempID
}

// apply sends m to the server and persists the acknowledged state locally.
// Local persistence failures are logged and do not fail the call.
func (e *Engine) apply(ctx context.Context, m domain.PendingMutation) (Result, error) {
	key := remote.WithIdempotencyKey(m.ID)
	pctx := context.WithoutCancel(ctx)

	switch m.Kind {
	case domain.MutationCreate:
		created, err := e.remote.CreateBook(ctx, *m.Book, key)
		if err != nil {
			return Result{}, err
		}
		if tempID := m.Book.ID; tempID != 0 && tempID != created.ID {
			e.persisted("record book id mapping", e.store.PutIDMapping(pctx, domain.IDMapping{
				Kind: domain.KindBook, TempID: tempID, ServerID: created.ID, CreatedAt: e.now(),
			}))
			e.persisted("replace temporary book", e.store.ReplaceBook(pctx, tempID, created))
		} else {
			e.persisted("save created book", e.store.SaveBook(pctx, created))
		}
		return Result{Book: &created}, nil

	case domain.MutationUpdate:
		updated, err := e.remote.UpdateBook(ctx, *m.Book, key)
		if err != nil {
			return Result{}, err
		}
		e.persisted("save updated book", e.store.SaveBook(pctx, updated))
		return Result{Book: &updated}, nil

	case domain.MutationDelete:
		if err := ignoreNotFound(e.remote.DeleteBook(ctx, m.BookID, key)); err != nil {
			return Result{}, err
		}
		e.persisted("delete book", e.store.DeleteBook(pctx, m.BookID))
		return Result{}, nil

	case domain.MutationCreateNote:
		input := domain.NoteInput{Content: m.Note.Content, DateISO: m.Note.DateISO}
		created, err := e.remote.CreateNote(ctx, m.Note.BookID, input, key)
		if err != nil {
			return Result{}, err
		}
		if tempID := m.Note.ID; tempID != 0 && tempID != created.ID {
			e.persisted("record note id mapping", e.store.PutIDMapping(pctx, domain.IDMapping{
				Kind: domain.KindNote, TempID: tempID, ServerID: created.ID, CreatedAt: e.now(),
			}))
			e.persisted("replace temporary note", e.store.ReplaceNote(pctx, tempID, created))
		} else {
			e.persisted("save created note", e.store.SaveNote(pctx, created))
		}
		return Result{Note: &created}, nil

	case domain.MutationDeleteNote:
		if err := ignoreNotFound(e.remote.DeleteNote(ctx, m.BookID, m.NoteID, key)); err != nil {
			return Result{}, err
		}
		e.persisted("delete note", e.store.DeleteNote(pctx, m.BookID, m.NoteID))
		return Result{}, nil
	}

	return Result{}, domainerrors.Validationf("unknown mutation kind %q", m.Kind)
}

// ignoreNotFound treats a 404 on delete as success.
func ignoreNotFound(err error) error {
	if domainerrors.RemoteStatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}
