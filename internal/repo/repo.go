// Package repo holds the in-memory state of a backend domain: intents, their
// reports and hub subscriptions. Every repository owns its lock and hands out
// deep copies, so callers never share mutable state with the store.
package repo

import (
	"sort"
	"sync"

	"intentmesh/internal/domain"
)

// page returns items[offset:offset+limit]. A non-positive limit means no limit.
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// Intents is the intent repository.
type Intents struct {
	mu    sync.RWMutex
	items map[string]domain.Intent
}

func NewIntents() *Intents {
	return &Intents{items: map[string]domain.Intent{}}
}

// Save stores a copy of it, replacing any intent with the same id.
func (r *Intents) Save(it domain.Intent) {
	r.mu.Lock()
	r.items[it.ID] = it.Clone()
	r.mu.Unlock()
}

// Create stores it only if its id is free.
func (r *Intents) Create(it domain.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[it.ID]; ok {
		return domain.Conflictf("intent '%s' already exists", it.ID)
	}
	r.items[it.ID] = it.Clone()
	return nil
}

func (r *Intents) Get(id string) (domain.Intent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return domain.Intent{}, false
	}
	return it.Clone(), true
}

// Delete removes the intent and returns what was stored.
func (r *Intents) Delete(id string) (domain.Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return it, ok
}

// List returns one page of intents ordered by id, and the total count.
func (r *Intents) List(offset, limit int) ([]domain.Intent, int) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	selected := page(ids, offset, limit)
	out := make([]domain.Intent, 0, len(selected))
	for _, id := range selected {
		out = append(out, r.items[id].Clone())
	}
	r.mu.RUnlock()
	return out, len(ids)
}

func (r *Intents) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
