package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	mu     sync.RWMutex
	lots   map[string][]SupplyLot
	prices map[string]decimal.Decimal
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		lots:   map[string][]SupplyLot{},
		prices: map[string]decimal.Decimal{},
	}
}

// AddProduct registers a product and its list price.
func (m *MemoryIndex) AddProduct(productID string, basePrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[productID] = basePrice
}

// AddLot appends a lot for lot.ProductID.
func (m *MemoryIndex) AddLot(lot SupplyLot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lots[lot.ProductID] = append(m.lots[lot.ProductID], lot)
}

func (m *MemoryIndex) LotsFor(_ context.Context, productID string) ([]SupplyLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SortLots(m.lots[productID]), nil
}

func (m *MemoryIndex) BasePrice(_ context.Context, productID string) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[productID]
	return price, ok, nil
}

func (m *MemoryIndex) StockedProducts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.lots))
	for id, lots := range m.lots {
		if len(SortLots(lots)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
