package syncengine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/id"
)

// Submit performs a write. Online, the server is called once: on success the
// result is persisted locally and returned; when the server cannot be reached
// the write is queued instead; a rejection by the server is returned and
// nothing is queued. Offline, the write is queued directly. A queued write is
// applied to the local copy and returned with Result.Queued set.
//
// A write on a record that already has a queued mutation is queued behind it
// even when online, and a background drain is started.
func (e *Engine) Submit(ctx context.Context, op Operation) (Result, error) {
	m := op.mutation()
	if m.Kind == domain.MutationCreateNote && m.Note != nil && m.Note.DateISO == "" {
		m.Note.DateISO = domain.FormatISO(e.now())
	}
	if err := m.Validate(); err != nil {
		return Result{}, domainerrors.Validationf("invalid operation: %v", err)
	}

	mutationID, err := id.Generate(id.PrefixMutation)
	if err != nil {
		return Result{}, err
	}
	m.ID = mutationID
	m = e.translate(ctx, m)

	queue, err := e.store.PendingMutations(ctx)
	if err != nil {
		e.logger.Warn("failed to read pending queue", "error", err)
	}
	if prior, ok := firstDependency(m, queue, e.idTable(ctx)); ok {
		e.logger.Debug("queuing behind pending mutation",
			"kind", m.Kind,
			"pending_id", prior.ID,
		)
		res := e.enqueue(ctx, m)
		if e.net.IsOnline() {
			e.kick()
		}
		return res, nil
	}

	if !e.net.IsOnline() {
		return e.enqueue(ctx, m), nil
	}

	res, err := e.apply(ctx, m)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, domainerrors.ErrNetworkUnavailable):
		e.logger.Info("server unreachable, queuing write", "kind", m.Kind, "error", err)
		return e.enqueue(ctx, m), nil
	default:
		return Result{}, err
	}
}

// firstDependency returns the oldest queued mutation m must wait for. Both
// sides are compared with temporary ids translated, so a queued write still
// naming a replayed create's temporary id holds back writes on its server id.
func firstDependency(m domain.PendingMutation, queue []domain.PendingMutation, ids domain.IDTable) (domain.PendingMutation, bool) {
	m = m.Resolved(ids.Resolve)
	for _, prior := range queue {
		if m.DependsOn(prior.Resolved(ids.Resolve)) {
			return prior, true
		}
	}
	return domain.PendingMutation{}, false
}

// enqueue stores m for replay and applies it to the local copy. Persistence
// failures are logged; the caller still gets the locally computed result.
func (e *Engine) enqueue(ctx context.Context, m domain.PendingMutation) Result {
	switch m.Kind {
	case domain.MutationCreate:
		if m.Book.ID == 0 {
			m.Book.ID = e.clock.Next()
		}
	case domain.MutationCreateNote:
		if m.Note.ID == 0 {
			m.Note.ID = e.clock.Next()
		}
	}

	pctx := context.WithoutCancel(ctx)
	if _, err := e.store.AddPendingMutation(pctx, m); err != nil {
		e.logger.Error("failed to persist pending mutation, change kept in memory only",
			"mutation_id", m.ID,
			"kind", m.Kind,
			"error", err,
		)
	}

	var err error
	switch m.Kind {
	case domain.MutationCreate, domain.MutationUpdate:
		err = e.store.SaveBook(pctx, *m.Book)
	case domain.MutationDelete:
		err = e.store.DeleteBook(pctx, m.BookID)
	case domain.MutationCreateNote:
		err = e.store.SaveNote(pctx, *m.Note)
	case domain.MutationDeleteNote:
		err = e.store.DeleteNote(pctx, m.BookID, m.NoteID)
	}
	e.persisted("apply queued write locally", err, slog.String("mutation_id", m.ID))

	return resultOf(m, true)
}

func resultOf(m domain.PendingMutation, queued bool) Result {
	res := Result{Queued: queued}
	if m.Book != nil {
		b := m.Book.Clone()
		res.Book = &b
	}
	if m.Note != nil {
		n := *m.Note
		res.Note = &n
	}
	return res
}

// persisted logs a swallowed local persistence failure.
func (e *Engine) persisted(op string, err error, attrs ...any) {
	if err == nil {
		return
	}
	args := append([]any{"op", op, "error", err}, attrs...)
	e.logger.Error("local persistence failure", args...)
}
