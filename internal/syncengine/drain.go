package syncengine

import (
	"context"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
)

// DrainReport summarizes one drain call.
type DrainReport struct {
	Attempted int
	Succeeded int
	Failed    int
	// Deferred counts mutations left untouched because an earlier mutation
	// on the same record failed in this pass.
	Deferred int
	// Skipped is set when another drain was already running.
	Skipped     bool
	Collections []domain.Collection
}

type entityRef struct {
	kind domain.EntityKind
	id   int64
}

// Drain replays pending mutations oldest first. A mutation leaves the queue
// only once the server acknowledged it; failures stay in place and keep
// their order. Mutations appended while draining are picked up before Drain
// returns. Each mutation is attempted at most once per call.
//
// Only one drain runs at a time; a concurrent call returns a report with
// Skipped set.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return DrainReport{Skipped: true}, nil
	}
	defer e.draining.Store(false)

	start := time.Now()
	var report DrainReport
	attempted := make(map[string]bool)
	var failed, touched []domain.PendingMutation

	for {
		queue, err := e.store.PendingMutations(ctx)
		if err != nil {
			return report, err
		}

		progressed := false
		for _, m := range queue {
			if attempted[m.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				e.finishDrain(ctx, &report, touched, start)
				return report, err
			}
			attempted[m.ID] = true
			progressed = true

			if len(failed) > 0 && blockedBy(m, failed, e.idTable(ctx)) {
				report.Deferred++
				failed = append(failed, m)
				continue
			}

			report.Attempted++
			touched = append(touched, m)
			if err := e.replay(ctx, m); err != nil {
				report.Failed++
				failed = append(failed, m)
				e.logger.Warn("replay failed, keeping mutation",
					"mutation_id", m.ID,
					"kind", m.Kind,
					"error", err,
				)
				continue
			}

			report.Succeeded++
			if err := e.store.RemovePendingMutation(context.WithoutCancel(ctx), m.ID); err != nil {
				e.logger.Error("failed to remove replayed mutation", "mutation_id", m.ID, "error", err)
			}
		}

		if !progressed {
			break
		}
	}

	e.finishDrain(ctx, &report, touched, start)
	return report, nil
}

// blockedBy reports whether m depends on a mutation that failed earlier in the
// pass, comparing translated ids.
func blockedBy(m domain.PendingMutation, failed []domain.PendingMutation, ids domain.IDTable) bool {
	m = m.Resolved(ids.Resolve)
	for _, f := range failed {
		if m.DependsOn(f.Resolved(ids.Resolve)) {
			return true
		}
	}
	return false
}

// replay applies one queued mutation. A create whose id mapping already
// exists was acknowledged before and is not sent again.
func (e *Engine) replay(ctx context.Context, m domain.PendingMutation) error {
	if e.alreadyCreated(ctx, m) {
		e.logger.Debug("create already acknowledged", "mutation_id", m.ID)
		return nil
	}
	_, err := e.apply(ctx, e.translate(ctx, m))
	return err
}

// finishDrain prunes mappings and publishes every collection a replay was
// attempted on, whether or not the server accepted it.
func (e *Engine) finishDrain(ctx context.Context, report *DrainReport, touched []domain.PendingMutation, start time.Time) {
	pctx := context.WithoutCancel(ctx)
	e.pruneMappings(pctx)

	if len(touched) > 0 {
		report.Collections = domain.AffectedCollections(touched)
		e.publish(Invalidation{Collections: report.Collections})
	}

	if report.Attempted == 0 && report.Deferred == 0 {
		return
	}
	remaining := -1
	if queue, err := e.store.PendingMutations(pctx); err == nil {
		remaining = len(queue)
	}
	e.logger.Info("drain finished",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"deferred", report.Deferred,
		"remaining", remaining,
		"duration", time.Since(start),
	)
}

// pruneMappings deletes id mappings no queued mutation references once they
// are older than the mapping TTL.
func (e *Engine) pruneMappings(ctx context.Context) {
	mappings, err := e.store.ListIDMappings(ctx)
	if err != nil {
		e.logger.Warn("failed to list id mappings", "error", err)
		return
	}
	if len(mappings) == 0 {
		return
	}
	queue, err := e.store.PendingMutations(ctx)
	if err != nil {
		e.logger.Warn("failed to read pending queue", "error", err)
		return
	}

	referenced := make(map[entityRef]bool, len(queue)*2)
	for _, m := range queue {
		if v := m.TargetBookID(); v != 0 {
			referenced[entityRef{domain.KindBook, v}] = true
		}
		if v := m.TargetNoteID(); v != 0 {
			referenced[entityRef{domain.KindNote, v}] = true
		}
	}

	cutoff := e.now().Add(-e.mappingTTL)
	for _, mp := range mappings {
		if referenced[entityRef{mp.Kind, mp.TempID}] || mp.CreatedAt.After(cutoff) {
			continue
		}
		if err := e.store.DeleteIDMapping(ctx, mp.Kind, mp.TempID); err != nil {
			e.logger.Warn("failed to prune id mapping", "kind", mp.Kind, "temp_id", mp.TempID, "error", err)
		}
	}
}
