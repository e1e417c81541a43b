package syncengine

import (
	"context"
	"time"

	"github.com/listenupapp/shelfsync/internal/domain"
)

// Run drives automatic replay until ctx is cancelled: once at startup when
// online, on every offline to online transition, and every RetryInterval
// while online with a non-empty queue.
func (e *Engine) Run(ctx context.Context) error {
	e.bgMu.Lock()
	e.bgCtx = ctx
	e.bgMu.Unlock()

	e.restoreClock(ctx)

	transitions, unsubscribe := e.net.Subscribe()
	defer unsubscribe()

	if e.net.IsOnline() {
		e.drainLogged(ctx, "startup")
	}

	var tick <-chan time.Time
	if e.retryInterval > 0 {
		ticker := time.NewTicker(e.retryInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			e.Wait()
			return ctx.Err()

		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if tr.Online {
				e.logger.Info("connectivity restored, draining queue")
				e.drainLogged(ctx, "reconnect")
			} else {
				e.logger.Info("connectivity lost, writes will be queued")
			}

		case <-tick:
			if !e.net.IsOnline() {
				continue
			}
			queue, err := e.store.PendingMutations(ctx)
			if err != nil || len(queue) == 0 {
				continue
			}
			e.drainLogged(ctx, "retry")
		}
	}
}

func (e *Engine) drainLogged(ctx context.Context, trigger string) {
	report, err := e.Drain(ctx)
	if err != nil && ctx.Err() == nil {
		e.logger.Warn("drain failed", "trigger", trigger, "error", err)
		return
	}
	if report.Skipped {
		e.logger.Debug("drain already running", "trigger", trigger)
	}
}

// restoreClock moves the temporary-id clock past ids already in the queue so
// ids assigned after a restart cannot collide with them.
func (e *Engine) restoreClock(ctx context.Context) {
	queue, err := e.store.PendingMutations(ctx)
	if err != nil {
		e.logger.Warn("failed to read pending queue", "error", err)
		return
	}
	for _, m := range queue {
		switch m.Kind {
		case domain.MutationCreate:
			e.clock.Observe(m.Book.ID)
		case domain.MutationCreateNote:
			e.clock.Observe(m.Note.ID)
		}
	}
	if len(queue) > 0 {
		e.logger.Info("pending mutations restored", "count", len(queue))
	}
}
