package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

type product struct {
	ID       string
	Name     string
	Category string
	Base     string
}

type supplyLot struct {
	Product  string
	Supplier string
	Price    string
	Qty      int
	AgeDays  int
}

var suppliers = []struct{ ID, Name string }{
	{"sup-dalat", "Da Lat Flower Farm"},
	{"sup-moc-chau", "Moc Chau Growers"},
	{"sup-import", "Imported Stems Co."},
}

var products = []product{
	{"1", "Red Rose", "roses", "15000"},
	{"2", "White Rose", "roses", "16000"},
	{"3", "Sunflower", "seasonal", "22000"},
	{"4", "Tulip", "imported", "35000"},
	{"5", "Baby's Breath (bunch)", "fillers", "45000"},
	{"6", "Orchid Stem", "imported", "60000"},
	{"7", "Lily", "seasonal", "28000"},
	{"8", "Carnation", "fillers", "9000"},
}

// Lots are priced differently per supplier so allocation has something to do.
var lots = []supplyLot{
	{"1", "sup-dalat", "10000", 3, 4},
	{"1", "sup-moc-chau", "12000", 4, 2},
	{"1", "sup-import", "14000", 20, 1},
	{"2", "sup-dalat", "11000", 10, 3},
	{"3", "sup-moc-chau", "18000", 6, 2},
	{"3", "sup-dalat", "18000", 6, 5},
	{"4", "sup-import", "30000", 12, 1},
	{"5", "sup-dalat", "40000", 8, 2},
	{"6", "sup-import", "52000", 2, 6},
	{"6", "sup-import", "55000", 5, 1},
	{"8", "sup-dalat", "7000", 50, 1},
	// Lily intentionally has no stock; it is priced from its base price.
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := seedSuppliers(ctx, tx); err != nil {
		log.Fatal(err)
	}
	if err := seedProducts(ctx, tx); err != nil {
		log.Fatal(err)
	}
	if err := seedLots(ctx, tx); err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit seed: %v", err)
	}
	log.Println("Seeding completed successfully!")
}

func seedSuppliers(ctx context.Context, tx *sql.Tx) error {
	fmt.Println("Seeding Suppliers...")
	for _, s := range suppliers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO suppliers (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, s.ID, s.Name)
		if err != nil {
			return fmt.Errorf("seed supplier %s: %w", s.ID, err)
		}
	}
	return nil
}

func seedProducts(ctx context.Context, tx *sql.Tx) error {
	fmt.Println("Seeding Products...")
	for _, p := range products {
		slug := strings.ToLower(strings.NewReplacer(" ", "-", "'", "", "(", "", ")", "").Replace(p.Name))
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, slug, category, base_price, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				base_price = EXCLUDED.base_price`, p.ID, p.Name, slug, p.Category, p.Base)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	return nil
}

// seedLots replaces the lots of seeded products so reruns stay deterministic.
func seedLots(ctx context.Context, tx *sql.Tx) error {
	fmt.Println("Seeding Supply Lots...")
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM supply_lots WHERE product_id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("clear lots: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	for _, l := range lots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO supply_lots (product_id, supplier_id, unit_price, quantity_available, received_at)
			VALUES ($1, $2, $3, $4, $5)`,
			l.Product, l.Supplier, l.Price, l.Qty, now.AddDate(0, 0, -l.AgeDays))
		if err != nil {
			return fmt.Errorf("seed lot for product %s: %w", l.Product, err)
		}
	}
	return nil
}
