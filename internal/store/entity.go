package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
)

// Entity provides generic CRUD over one key prefix of a KV. Each record is a
// JSON document stored under prefix+id.
type Entity[T any] struct {
	kv     KV
	prefix string
	// mu serializes Create's existence check with its write.
	mu sync.Mutex
}

// NewEntity creates an Entity for type T under prefix.
func NewEntity[T any](kv KV, prefix string) *Entity[T] {
	return &Entity[T]{kv: kv, prefix: prefix}
}

// Create stores entity under id. Returns ErrAlreadyExists if id is taken.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.kv.Get(ctx, e.prefix+id)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to check existing key: %w", err)
	}
	return e.put(ctx, id, entity)
}

// Put creates or replaces the entity stored under id.
func (e *Entity[T]) Put(ctx context.Context, id string, entity *T) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.put(ctx, id, entity)
}

func (e *Entity[T]) put(ctx context.Context, id string, entity *T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	if err := e.kv.Set(ctx, e.prefix+id, data); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := e.kv.Get(ctx, e.prefix+id)
	if err != nil {
		return nil, err
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &entity, nil
}

// Delete deletes an entity by ID. Idempotent.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	return e.kv.Delete(ctx, e.prefix+id)
}

// List iterates over every entity whose id starts with sub, in key order.
func (e *Entity[T]) List(ctx context.Context, sub string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		keys, err := e.kv.Keys(ctx, e.prefix+sub)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, key := range keys {
			data, err := e.kv.Get(ctx, key)
			if errors.Is(err, ErrNotFound) {
				// Deleted after Keys returned.
				continue
			}
			if err != nil {
				yield(nil, err)
				return
			}

			var entity T
			if err := json.Unmarshal(data, &entity); err != nil {
				yield(nil, fmt.Errorf("failed to unmarshal entity %s: %w", key, err))
				return
			}
			if !yield(&entity, nil) {
				return
			}
		}
	}
}

// Collect drains List into a slice.
func (e *Entity[T]) Collect(ctx context.Context, sub string) ([]T, error) {
	var out []T
	for entity, err := range e.List(ctx, sub) {
		if err != nil {
			return nil, err
		}
		out = append(out, *entity)
	}
	return out, nil
}
