package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

type SpendRepository struct {
	db *sql.DB
}

func NewSpendRepository(db *sql.DB) *SpendRepository {
	return &SpendRepository{db: db}
}

// Increment adds a settled purchase total to the participant's cumulative
// spend, creating the ledger row on first purchase.
func (r *SpendRepository) Increment(ctx context.Context, participant string, amount decimal.Decimal) error {
	query := `INSERT INTO user_spending (user_id, total_spent) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET total_spent = user_spending.total_spent + EXCLUDED.total_spent`
	_, err := r.db.ExecContext(ctx, query, domain.CanonicalAddress(participant), amount.String())
	if err != nil {
		return fmt.Errorf("error incrementing spend for %s: %w", participant, err)
	}
	return nil
}

func (r *SpendRepository) TotalSpent(ctx context.Context, participant string) (decimal.Decimal, error) {
	query := "SELECT total_spent FROM user_spending WHERE user_id = $1"

	var total string
	err := r.db.QueryRowContext(ctx, query, domain.CanonicalAddress(participant)).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("error reading spend for %s: %w", participant, err)
	}

	spent, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad total_spent %q: %w", total, err)
	}
	return spent, nil
}
