package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) ReadAll(ctx context.Context) ([]domain.Item, error) {
	query := "SELECT id, color, last_bought, last_price, owner FROM pixel_data ORDER BY id"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error reading items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) ReadOne(ctx context.Context, id int) (domain.Item, error) {
	query := "SELECT id, color, last_bought, last_price, owner FROM pixel_data WHERE id = $1"
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return domain.Item{}, fmt.Errorf("error reading item %d: %w", id, err)
	}
	return item, nil
}

// UpdateOnPurchase persists a settled purchase: new owner, paid price, chosen
// color and the purchase timestamp the pricing decay counts from.
func (r *ItemRepository) UpdateOnPurchase(ctx context.Context, id int, owner string, price decimal.Decimal, color string, boughtAt time.Time) error {
	query := "UPDATE pixel_data SET owner = $2, last_price = $3, color = $4, last_bought = $5 WHERE id = $1"
	res, err := r.db.ExecContext(ctx, query, id, owner, price.String(), color, boughtAt)
	if err != nil {
		return fmt.Errorf("error updating item %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("error updating item %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// EnsureItems seeds rows 1..count so every map cell has a record before the
// first purchase. Existing rows are left alone.
func (r *ItemRepository) EnsureItems(ctx context.Context, count int) error {
	query := `INSERT INTO pixel_data (id, color, last_price, owner)
		SELECT gs, '#ffffff', 0, '' FROM generate_series(1, $1) AS gs
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, count); err != nil {
		return fmt.Errorf("error seeding items: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item       domain.Item
		lastBought sql.NullTime
		lastPrice  string
	)
	if err := row.Scan(&item.ID, &item.Color, &lastBought, &lastPrice, &item.Owner); err != nil {
		return domain.Item{}, err
	}
	if lastBought.Valid {
		t := lastBought.Time
		item.LastBought = &t
	}
	price, err := decimal.NewFromString(lastPrice)
	if err != nil {
		return domain.Item{}, fmt.Errorf("bad last_price %q: %w", lastPrice, err)
	}
	item.LastPrice = price
	return item, nil
}
