package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

func newTestModel() *Model {
	return NewModel(decimal.NewFromInt(1), time.Minute)
}

func TestQuoteDefaultWhenNeverBought(t *testing.T) {
	m := newTestModel()
	got := m.Quote(domain.Item{ID: 1}, time.Now())
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected default price 1, got %s", got)
	}
}

func TestQuoteDoublesImmediatelyAfterPurchase(t *testing.T) {
	m := newTestModel()
	now := time.Now()
	rec := domain.Item{ID: 1, LastBought: &now, LastPrice: decimal.NewFromFloat(3.5)}

	got := m.Quote(rec, now)
	if !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected 7 right after purchase at 3.5, got %s", got)
	}
}

func TestQuoteDecaysToLastPriceAtWindow(t *testing.T) {
	m := newTestModel()
	bought := time.Now().Add(-time.Minute)
	rec := domain.Item{ID: 1, LastBought: &bought, LastPrice: decimal.NewFromFloat(3.5)}

	got := m.Quote(rec, time.Now())
	if !got.Equal(decimal.NewFromFloat(3.5)) {
		t.Fatalf("expected 3.5 at end of window, got %s", got)
	}
}

func TestQuoteNeverBelowDefault(t *testing.T) {
	m := newTestModel()
	bought := time.Now().Add(-2 * time.Hour)
	rec := domain.Item{ID: 1, LastBought: &bought, LastPrice: decimal.NewFromFloat(0.25)}

	got := m.Quote(rec, time.Now())
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("quote dropped below default floor: %s", got)
	}
}

func TestQuoteMonotonicDecay(t *testing.T) {
	m := newTestModel()
	bought := time.Now()
	rec := domain.Item{ID: 1, LastBought: &bought, LastPrice: decimal.NewFromInt(2)}

	prev := m.Quote(rec, bought)
	for _, elapsed := range []time.Duration{
		time.Second, 10 * time.Second, 30 * time.Second, 59 * time.Second, time.Minute, 2 * time.Minute,
	} {
		got := m.Quote(rec, bought.Add(elapsed))
		if got.GreaterThan(prev) {
			t.Fatalf("quote rose over time: %s after %s (was %s)", got, elapsed, prev)
		}
		prev = got
	}
	if !prev.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected quote to settle at last price 2, got %s", prev)
	}
}

func TestQuoteFutureLastBoughtClampsToDouble(t *testing.T) {
	m := newTestModel()
	future := time.Now().Add(time.Hour)
	rec := domain.Item{ID: 1, LastBought: &future, LastPrice: decimal.NewFromInt(2)}

	got := m.Quote(rec, time.Now())
	if !got.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected clamp to 4 for future timestamp, got %s", got)
	}
}
