// Package memory provides in-process storage used by tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/streetfare/orderline/internal/domain/cart"
)

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps carts in a map guarded by a mutex. Safe for concurrent use.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]cart.Cart
}

// NewCartStore returns an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]cart.Cart)}
}

// Read returns a copy of the owner's cart, or an empty cart when none exists.
func (s *CartStore) Read(_ context.Context, ownerID string) (*cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[ownerID]
	if !ok {
		return &cart.Cart{OwnerID: ownerID}, nil
	}
	cp := c
	cp.Lines = make([]cart.Line, len(c.Lines))
	copy(cp.Lines, c.Lines)
	return &cp, nil
}

// Write replaces the owner's cart wholesale.
func (s *CartStore) Write(_ context.Context, c *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	cp.Lines = make([]cart.Line, len(c.Lines))
	copy(cp.Lines, c.Lines)
	s.carts[c.OwnerID] = cp
	return nil
}

// Clear removes the owner's cart.
func (s *CartStore) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, ownerID)
	return nil
}
