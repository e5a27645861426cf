package repo

import (
	"sort"
	"sync"

	"intentmesh/internal/domain"
)

// Subscriptions is the hub subscription repository.
type Subscriptions struct {
	mu    sync.RWMutex
	items map[string]domain.HubSubscription
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{items: map[string]domain.HubSubscription{}}
}

func (r *Subscriptions) Save(s domain.HubSubscription) {
	r.mu.Lock()
	r.items[s.ID] = s.Clone()
	r.mu.Unlock()
}

func (r *Subscriptions) Get(id string) (domain.HubSubscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return domain.HubSubscription{}, false
	}
	return s.Clone(), true
}

func (r *Subscriptions) Delete(id string) (domain.HubSubscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return s, ok
}

// List returns every subscription ordered by creation time, then id.
func (r *Subscriptions) List() []domain.HubSubscription {
	r.mu.RLock()
	out := make([]domain.HubSubscription, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindByEvent returns the subscriptions that want eventType for intentID.
func (r *Subscriptions) FindByEvent(eventType domain.EventType, intentID string) []domain.HubSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.HubSubscription
	for _, s := range r.items {
		if s.Matches(eventType, intentID) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
