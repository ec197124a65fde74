package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// RoomState is the per-room settlement state machine position.
type RoomState string

const (
	StateEmpty            RoomState = "empty"
	StateWaitingForSecond RoomState = "waitingForSecond"
	StateReady            RoomState = "ready"
	StateAwaitingGuestSig RoomState = "awaitingGuestSignature"
	StateAwaitingHostSig  RoomState = "awaitingHostSignature"
	StateOpeningSession   RoomState = "openingSession"
	StateSessionActive    RoomState = "sessionActive"
	StateClosingSession   RoomState = "closingSession"
	StateClosed           RoomState = "closed"
)

// ValidWagers is the fixed set of stake values a room may be created with.
var ValidWagers = []decimal.Decimal{
	decimal.Zero,
	decimal.NewFromFloat(0.01),
	decimal.NewFromFloat(0.1),
	decimal.NewFromInt(1),
	decimal.NewFromInt(2),
}

func IsValidWager(amount decimal.Decimal) bool {
	for _, w := range ValidWagers {
		if w.Equal(amount) {
			return true
		}
	}
	return false
}

// CanonicalAddress lower-cases a participant account address so the same
// wallet never occupies two seats under different casings.
func CanonicalAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Item is one purchasable map cell with its price history.
type Item struct {
	ID         int
	Color      string
	LastBought *time.Time
	LastPrice  decimal.Decimal
	Owner      string
}

// PurchaseItem is one entry of a purchase request.
type PurchaseItem struct {
	ID    int             `json:"id"`
	Color string          `json:"color"`
	Price decimal.Decimal `json:"price"`
}

type AvailableRoom struct {
	RoomID      string          `json:"roomId"`
	HostID      string          `json:"hostId"`
	CreatedAt   time.Time       `json:"createdAt"`
	WagerAmount decimal.Decimal `json:"wagerAmount"`
}
