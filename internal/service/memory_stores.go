package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/lurnify/backend-payment/internal/domain"
)

// MemoryItemRegistry is a catalog backed by a map, for development and
// tests. Production deployments point ItemRegistry at the catalog
// service instead.
type MemoryItemRegistry struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewMemoryItemRegistry creates an empty in-memory catalog
func NewMemoryItemRegistry() *MemoryItemRegistry {
	return &MemoryItemRegistry{items: make(map[string]*Item)}
}

func itemKey(itemType domain.ItemType, itemID string) string {
	return fmt.Sprintf("%s:%s", itemType, itemID)
}

// Put registers an item
func (r *MemoryItemRegistry) Put(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[itemKey(item.Type, item.ID)] = item
}

// Lookup resolves an item reference
func (r *MemoryItemRegistry) Lookup(ctx context.Context, itemType domain.ItemType, itemID string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemKey(itemType, itemID)]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

// MemoryEntitlementStore tracks grants in memory
type MemoryEntitlementStore struct {
	mu     sync.RWMutex
	grants map[string]string // (user,item) -> granting payment ID
}

// NewMemoryEntitlementStore creates an empty in-memory entitlement store
func NewMemoryEntitlementStore() *MemoryEntitlementStore {
	return &MemoryEntitlementStore{grants: make(map[string]string)}
}

func grantKey(userID string, itemType domain.ItemType, itemID string) string {
	return fmt.Sprintf("%s:%s:%s", userID, itemType, itemID)
}

// Grant records access for a user
func (s *MemoryEntitlementStore) Grant(ctx context.Context, userID string, itemType domain.ItemType, itemID, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey(userID, itemType, itemID)] = paymentID
	return nil
}

// HasAccess reports whether a user owns an item
func (s *MemoryEntitlementStore) HasAccess(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[grantKey(userID, itemType, itemID)]
	return ok, nil
}

// GrantCount returns how many grants exist (for tests)
func (s *MemoryEntitlementStore) GrantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}
