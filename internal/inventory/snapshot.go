package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

type baseEntry struct {
	price decimal.Decimal
	known bool
}

// Snapshot memoises lookups for the lifetime of one pricing request so that
// every line sees the same lots. It is not safe for concurrent use.
type Snapshot struct {
	index Index
	lots  map[string][]SupplyLot
	base  map[string]baseEntry
}

// NewSnapshot returns an empty Snapshot reading through index.
func NewSnapshot(index Index) *Snapshot {
	return &Snapshot{
		index: index,
		lots:  map[string][]SupplyLot{},
		base:  map[string]baseEntry{},
	}
}

func (s *Snapshot) LotsFor(ctx context.Context, productID string) ([]SupplyLot, error) {
	if lots, ok := s.lots[productID]; ok {
		return lots, nil
	}
	lots, err := s.index.LotsFor(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.lots[productID] = lots
	return lots, nil
}

func (s *Snapshot) BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	if entry, ok := s.base[productID]; ok {
		return entry.price, entry.known, nil
	}
	price, known, err := s.index.BasePrice(ctx, productID)
	if err != nil {
		return decimal.Zero, false, err
	}
	s.base[productID] = baseEntry{price: price, known: known}
	return price, known, nil
}
