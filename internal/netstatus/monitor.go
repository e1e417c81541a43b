// Package netstatus tracks whether the book server is reachable and notifies
// subscribers of online/offline transitions.
package netstatus

import (
	"log/slog"
	"sync"
	"time"
)

// Transition is a change of connectivity.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor holds the current connectivity state. The zero value is not usable;
// create one with NewMonitor.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Transition
	nextID int
	now    func() time.Time
	logger *slog.Logger
}

// NewMonitor creates a Monitor starting in the given state.
func NewMonitor(initial bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		online: initial,
		subs:   make(map[int]chan Transition),
		now:    time.Now,
		logger: logger,
	}
}

// IsOnline reports the last known state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state and notifies subscribers if it changed.
// Subscribers that have not consumed the previous transition only see the
// latest one.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	t := Transition{Online: online, At: m.now()}

	m.logger.Info("connectivity changed", "online", online)

	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
			// Replace the unread transition with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t:
			default:
			}
		}
	}
}

// Subscribe returns a channel of transitions and a cancel func that closes it.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subID := m.nextID
	m.nextID++
	ch := make(chan Transition, 1)
	m.subs[subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, subID)
			close(ch)
		})
	}
	return ch, cancel
}
