// Package id generates client-side identifiers: prefixed NanoIDs for pending
// mutations, UUIDv7 device ids, and temporary entity ids from a monotonic clock.
package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used for generated ids.
const (
	PrefixMutation = "mut"
)

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "mut-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewDeviceID returns a time-ordered UUID identifying this client installation.
func NewDeviceID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return u.String(), nil
}

// Clock hands out temporary entity ids for records created before the server
// has acknowledged them. Values are milliseconds since the Unix epoch and are
// strictly increasing for the lifetime of the Clock, even when several ids are
// requested within the same millisecond or the wall clock steps backwards.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock creates a Clock backed by the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt creates a Clock backed by the given time source. Used in tests.
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns the next temporary id.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.now().UnixMilli()
	if v <= c.last {
		v = c.last + 1
	}
	c.last = v
	return v
}

// Observe advances the clock past v so ids restored from disk are never reissued.
func (c *Clock) Observe(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.last {
		c.last = v
	}
}
