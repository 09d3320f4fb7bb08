package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgxpool.Pool used by PostgresIndex.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	lotsForProductSQL = `
SELECT l.id::text, l.product_id, l.supplier_id, l.unit_price::text, l.quantity_available, l.received_at
FROM supply_lots l
JOIN products p ON p.id = l.product_id AND p.active
WHERE l.product_id = $1 AND l.quantity_available > 0
ORDER BY l.unit_price ASC, l.received_at ASC, l.id ASC`

	basePriceSQL = `SELECT base_price::text FROM products WHERE id = $1 AND active`

	stockedProductsSQL = `
SELECT DISTINCT l.product_id
FROM supply_lots l
JOIN products p ON p.id = l.product_id AND p.active
WHERE l.quantity_available > 0
ORDER BY l.product_id`
)

// PostgresIndex reads lots from the supply_lots table. Lots of inactive
// products are invisible, matching BasePrice.
type PostgresIndex struct {
	DB Querier
}

func (p PostgresIndex) LotsFor(ctx context.Context, productID string) ([]SupplyLot, error) {
	rows, err := p.DB.Query(ctx, lotsForProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("query lots: %w", err)
	}
	lots, err := pgx.CollectRows(rows, scanLot)
	if err != nil {
		return nil, fmt.Errorf("scan lots: %w", err)
	}
	// SQL ordering on id is lexical; apply the numeric-aware tie-break.
	return SortLots(lots), nil
}

func scanLot(row pgx.CollectableRow) (SupplyLot, error) {
	var (
		lot        SupplyLot
		price      string
		receivedAt time.Time
	)
	if err := row.Scan(&lot.LotID, &lot.ProductID, &lot.SupplierID, &price, &lot.QuantityAvailable, &receivedAt); err != nil {
		return SupplyLot{}, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return SupplyLot{}, fmt.Errorf("lot %s unit price: %w", lot.LotID, err)
	}
	lot.UnitPrice = parsed
	lot.ReceivedAt = receivedAt.UTC()
	return lot, nil
}

func (p PostgresIndex) BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	var price string
	err := p.DB.QueryRow(ctx, basePriceSQL, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query base price: %w", err)
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("product %s base price: %w", productID, err)
	}
	return parsed, true, nil
}

func (p PostgresIndex) StockedProducts(ctx context.Context) ([]string, error) {
	rows, err := p.DB.Query(ctx, stockedProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("query stocked products: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan stocked products: %w", err)
	}
	return ids, nil
}
