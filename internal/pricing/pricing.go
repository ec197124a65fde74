package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

// Model computes live item quotes from purchase history. A freshly bought
// item costs twice its last price and relaxes back down to the last price
// over the decay window. Quotes never drop below the default price.
type Model struct {
	defaultPrice decimal.Decimal
	decayWindow  time.Duration
}

func NewModel(defaultPrice decimal.Decimal, decayWindow time.Duration) *Model {
	return &Model{defaultPrice: defaultPrice, decayWindow: decayWindow}
}

func (m *Model) DefaultPrice() decimal.Decimal {
	return m.defaultPrice
}

// Quote returns the current price of an item. Pure: same record and clock
// always produce the same quote.
func (m *Model) Quote(record domain.Item, now time.Time) decimal.Decimal {
	if record.LastBought == nil {
		return m.defaultPrice
	}

	elapsed := now.Sub(*record.LastBought)
	decay := m.decay(elapsed)
	raised := record.LastPrice.Mul(decimal.NewFromInt(1).Add(decay))
	return decimal.Max(m.defaultPrice, raised)
}

// decay is 1 immediately after a purchase and falls linearly to 0 at the
// end of the decay window.
func (m *Model) decay(elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.NewFromInt(1)
	}
	if elapsed >= m.decayWindow {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(
		decimal.NewFromInt(elapsed.Milliseconds()).
			Div(decimal.NewFromInt(m.decayWindow.Milliseconds())))
}
