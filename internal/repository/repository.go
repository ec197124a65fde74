package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

type ItemRepo interface {
	ReadAll(ctx context.Context) ([]domain.Item, error)
	ReadOne(ctx context.Context, id int) (domain.Item, error)
	UpdateOnPurchase(ctx context.Context, id int, owner string, price decimal.Decimal, color string, boughtAt time.Time) error
}

type SpendRepo interface {
	Increment(ctx context.Context, participant string, amount decimal.Decimal) error
	TotalSpent(ctx context.Context, participant string) (decimal.Decimal, error)
}
