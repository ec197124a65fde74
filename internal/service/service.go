package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
	"github.com/KStasi/pixel-map/internal/infrastructure/kafka"
	"github.com/KStasi/pixel-map/internal/rooms"
	"github.com/KStasi/pixel-map/internal/settlement"
)

// Engine is the coordination surface the transport dispatches into.
type Engine interface {
	JoinRoom(ctx context.Context, sender rooms.Sender, roomID, participant string, wager decimal.Decimal) error
	ListAvailableRooms(ctx context.Context, sender rooms.Sender) error
	SubmitSignature(ctx context.Context, roomID, participant, signature string) error
	PurchaseItems(ctx context.Context, sender rooms.Sender, buyer string, items []domain.PurchaseItem, total decimal.Decimal, signature string) error
	ItemsState(ctx context.Context, sender rooms.Sender) error
	Disconnect(ctx context.Context, participant string)
	SetBroadcaster(b Broadcaster)
}

// SettlementBroker opens and closes settlement sessions with the peer.
type SettlementBroker interface {
	OpenSession(ctx context.Context, payload json.RawMessage, signatures []string) (string, error)
	CloseSession(ctx context.Context, sessionID string, final []settlement.Allocation, signatures []string) (settlement.CloseReceipt, error)
}

// Broadcaster pushes a message to every connected client, room member or not.
type Broadcaster interface {
	Broadcast(v any)
}

// PurchaseRecorder appends settled purchases to the audit feed.
type PurchaseRecorder interface {
	RecordPurchase(ctx context.Context, ev kafka.PurchaseEvent) error
}

type Service struct {
	Engine
}

func NewService(deps EngineDeps) *Service {
	return &Service{
		Engine: NewEngineService(deps),
	}
}
