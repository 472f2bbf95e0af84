package orderlog

import (
	"context"
	"sort"
	"sync"

	"tradeledger/internal/models"
)

// MemoryStore keeps order logs in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string][]models.Order
	// SaveErr, when set, is returned by every SaveOrders call.
	SaveErr error
	saves   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string][]models.Order)}
}

// LoadOrders returns a copy of the stored log.
func (m *MemoryStore) LoadOrders(_ context.Context, portfolioID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, len(m.orders[portfolioID]))
	copy(out, m.orders[portfolioID])
	return out, nil
}

// SaveOrders replaces the stored log.
func (m *MemoryStore) SaveOrders(_ context.Context, portfolioID string, orders []models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	stored := make([]models.Order, len(orders))
	copy(stored, orders)
	m.orders[portfolioID] = stored
	m.saves++
	return nil
}

// ListPortfolios returns the portfolio IDs with at least one order, sorted.
func (m *MemoryStore) ListPortfolios(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.orders))
	for id, orders := range m.orders {
		if len(orders) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeletePortfolio removes a portfolio's log.
func (m *MemoryStore) DeletePortfolio(_ context.Context, portfolioID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.orders[portfolioID]))
	delete(m.orders, portfolioID)
	return n, nil
}

// Saves returns how many SaveOrders calls succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
