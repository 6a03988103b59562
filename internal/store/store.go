package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"printshop/internal/feed"
	"printshop/internal/models"
)

// ErrFetch marks a failed bulk load. Callers surface a retry affordance;
// the store itself never retries.
var ErrFetch = errors.New("fetch orders failed")

// Loader performs the bulk read backing a fresh snapshot. userID scopes the
// read to one owner; empty means all orders (staff and admin viewers).
type Loader interface {
	ListOrders(ctx context.Context, userID string) ([]*models.Order, error)
}

// Store mirrors the order rows visible to one viewer. It is populated by
// Load and kept consistent by ApplyChange; it never writes back to
// persistence. A feed drop leaves it serving a stale snapshot (degraded)
// rather than tearing it down.
type Store struct {
	mu       sync.RWMutex
	scope    string
	orders   []*models.Order
	loaded   bool
	closed   bool
	degraded bool
}

func New(scope string) *Store {
	return &Store{scope: scope}
}

// Load replaces the snapshot with a bulk read, newest first. A feed
// reconnect may call Load again; ApplyChange stays idempotent across the
// replay overlap.
func (s *Store) Load(ctx context.Context, loader Loader) error {
	orders, err := loader.ListOrders(ctx, s.scope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.orders = orders
	s.loaded = true
	s.degraded = false
	return nil
}

// ApplyChange applies one feed event in delivery order. Duplicate inserts
// and deletes of absent rows are no-ops. Events arriving after Close are
// discarded.
func (s *Store) ApplyChange(event feed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch event.Type {
	case feed.EventInsert:
		if event.Row == nil || s.find(event.Row.ID) >= 0 {
			return
		}
		if !s.inScope(event.Row) {
			return
		}
		s.orders = append([]*models.Order{event.Row}, s.orders...)
	case feed.EventUpdate:
		i := s.find(event.ID)
		if i < 0 {
			// An update for a row we never saw (scope change or replay gap)
			// behaves like an insert when the full row is present.
			if event.Row != nil && s.inScope(event.Row) {
				s.orders = append([]*models.Order{event.Row}, s.orders...)
			}
			return
		}
		if event.Row != nil {
			s.orders[i] = event.Row
			return
		}
		if merged, err := mergePatch(s.orders[i], event.Patch); err == nil {
			s.orders[i] = merged
		}
	case feed.EventDelete:
		if i := s.find(event.ID); i >= 0 {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
		}
	}
}

// mergePatch overlays a partial payload onto a copy of the current row.
// Fields absent from the patch keep their current values (field union); a
// full-row payload goes through ApplyChange's replacement path instead.
func mergePatch(current *models.Order, patch map[string]json.RawMessage) (*models.Order, error) {
	if len(patch) == 0 {
		return current, nil
	}
	merged := *current
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *Store) find(id string) int {
	for i, o := range s.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) inScope(o *models.Order) bool {
	return s.scope == "" || o.UserID == s.scope
}

// Snapshot returns the current collection, newest first.
func (s *Store) Snapshot() []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Active returns orders still in processing, optionally for one owner.
// Terminal orders drop out by filtering, not deletion.
func (s *Store) Active(userID string) []*models.Order {
	return s.filter(func(o *models.Order) bool {
		return o.Active() && (userID == "" || o.UserID == userID)
	})
}

// History returns completed and delivered orders, optionally for one owner.
func (s *Store) History(userID string) []*models.Order {
	return s.filter(func(o *models.Order) bool {
		return !o.Active() && (userID == "" || o.UserID == userID)
	})
}

func (s *Store) filter(keep func(*models.Order) bool) []*models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) Get(id string) (*models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.find(id); i >= 0 {
		return s.orders[i], true
	}
	return nil, false
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// MarkDegraded flags the snapshot as stale after a feed drop.
func (s *Store) MarkDegraded() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}

func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Close stops the store from applying further events. In-flight responses
// arriving afterwards are dropped, never applied to a torn-down store.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
