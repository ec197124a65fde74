package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
	myErrors "github.com/KStasi/pixel-map/internal/errors"
	"github.com/KStasi/pixel-map/internal/infrastructure/kafka"
	natsjs "github.com/KStasi/pixel-map/internal/infrastructure/nats"
	"github.com/KStasi/pixel-map/internal/pricing"
	"github.com/KStasi/pixel-map/internal/protocol"
	"github.com/KStasi/pixel-map/internal/repository"
	"github.com/KStasi/pixel-map/internal/rooms"
	"github.com/KStasi/pixel-map/internal/settlement"
	"github.com/KStasi/pixel-map/internal/signatures"
	"github.com/KStasi/pixel-map/internal/signer"
)

type EngineDeps struct {
	Registry  *rooms.Registry
	Collector *signatures.Collector
	Broker    SettlementBroker
	Items     repository.ItemRepo
	Spend     repository.SpendRepo
	Signer    signer.Signer
	Verifier  signer.Verifier
	Pricing   *pricing.Model

	// optional wiring; nil disables the corresponding side channel
	Events *natsjs.JSClient
	Audit  PurchaseRecorder

	Protocol  string
	Asset     string
	Challenge int
}

type EngineService struct {
	registry  *rooms.Registry
	collector *signatures.Collector
	broker    SettlementBroker
	items     repository.ItemRepo
	spend     repository.SpendRepo
	signer    signer.Signer
	verifier  signer.Verifier
	pricing   *pricing.Model
	events    *natsjs.JSClient
	audit     PurchaseRecorder
	broadcast Broadcaster

	protocol  string
	asset     string
	challenge int
}

func NewEngineService(deps EngineDeps) *EngineService {
	return &EngineService{
		registry:  deps.Registry,
		collector: deps.Collector,
		broker:    deps.Broker,
		items:     deps.Items,
		spend:     deps.Spend,
		signer:    deps.Signer,
		verifier:  deps.Verifier,
		pricing:   deps.Pricing,
		events:    deps.Events,
		audit:     deps.Audit,
		protocol:  deps.Protocol,
		asset:     deps.Asset,
		challenge: deps.Challenge,
	}
}

// SetBroadcaster hands the engine the whole-server fan-out once the transport
// hub exists. The hub needs the engine to dispatch into, so this cannot be a
// constructor argument.
func (s *EngineService) SetBroadcaster(b Broadcaster) {
	s.broadcast = b
}

// JoinRoom seats a participant, creating the room first when no id was given.
// When the second seat fills, the settlement negotiation starts immediately:
// the canonical session payload is built once and offered to the guest.
func (s *EngineService) JoinRoom(ctx context.Context, sender rooms.Sender, roomID, participant string, wager decimal.Decimal) error {
	if !domain.IsValidWager(wager) {
		return fmt.Errorf("wager %s: %w", wager, myErrors.ErrInvalidWagerAmount)
	}

	created := roomID == ""
	if created {
		roomID = s.registry.CreateRoom(wager)
	}

	res, err := s.registry.JoinRoom(roomID, participant, sender, wager)
	if err != nil {
		if created {
			s.registry.CloseRoom(roomID)
		}
		return fmt.Errorf("cannot join room %s: %w", roomID, err)
	}

	if created {
		if sendErr := sender.Send(protocol.NewRoomCreated(roomID, res.Role)); sendErr != nil {
			slog.Warn("cannot deliver roomCreated", "room", roomID, "error", sendErr)
		}
	}

	s.registry.Broadcast(roomID, protocol.NewRoomState(res.Room.Snapshot()))
	s.publishRoomEvent(ctx, eventTypeFor(created, res.Ready), res.Room)

	if res.Ready {
		s.registry.Broadcast(roomID, protocol.NewRoomReady(roomID))
		if err := s.beginNegotiation(res.Room); err != nil {
			return err
		}
	}
	return nil
}

func eventTypeFor(created, ready bool) string {
	switch {
	case ready:
		return "ready"
	case created:
		return "created"
	default:
		return "joined"
	}
}

// beginNegotiation opens the signature round for a full room. The guest signs
// first; the host sees the same bytes only after the guest has committed.
func (s *EngineService) beginNegotiation(room *rooms.Room) error {
	host, guest := room.Players()

	payload, err := settlement.NewSessionPayload(
		[]string{guest, host}, s.signer.Address(), s.protocol, s.asset, room.Wager(), s.challenge,
	)
	if err != nil {
		return fmt.Errorf("cannot build session payload: %w", err)
	}

	if err := s.collector.Open(room.ID(), payload, []string{guest, host}); err != nil {
		// a negotiation is already running for this room, nothing to start
		slog.Warn("signature round already open", "room", room.ID())
		return nil
	}

	if !room.Transition(domain.StateReady, domain.StateAwaitingGuestSig) {
		s.collector.Invalidate(room.ID())
		return nil
	}

	s.deliverSignatureRequest(room, guest, payload, []string{guest, host})
	return nil
}

func (s *EngineService) deliverSignatureRequest(room *rooms.Room, to string, payload []byte, participants []string) {
	sender, ok := room.SenderOf(to)
	if !ok {
		slog.Warn("signature request has no reachable recipient", "room", room.ID(), "participant", to)
		return
	}
	if err := sender.Send(protocol.NewSignatureRequest(room.ID(), payload, participants)); err != nil {
		slog.Warn("cannot deliver signatureRequest", "room", room.ID(), "participant", to, "error", err)
	}
}

// SubmitSignature records one participant's signature over the pending session
// payload. When the set completes, the engine counter-signs and opens the
// settlement session with the peer.
func (s *EngineService) SubmitSignature(ctx context.Context, roomID, participant, signature string) error {
	room, ok := s.registry.Get(roomID)
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, myErrors.ErrRoomNotFound)
	}
	participant = domain.CanonicalAddress(participant)
	if _, ok := room.RoleOf(participant); !ok {
		return fmt.Errorf("participant %s in room %s: %w", participant, roomID, myErrors.ErrNotInRoom)
	}

	payload, ok := s.collector.Peek(roomID)
	if !ok {
		return fmt.Errorf("room %s: %w", roomID, myErrors.ErrNoPendingSession)
	}
	if err := s.verifier.Verify(payload, signature, participant); err != nil {
		return fmt.Errorf("signature from %s: %w", participant, err)
	}

	complete, err := s.collector.Add(roomID, participant, signature)
	if err != nil {
		return fmt.Errorf("cannot record signature: %w", err)
	}

	if sender, ok := room.SenderOf(participant); ok {
		if sendErr := sender.Send(protocol.NewSignatureConfirmed(roomID)); sendErr != nil {
			slog.Warn("cannot deliver signatureConfirmed", "room", roomID, "error", sendErr)
		}
	}

	if !complete {
		host, guest := room.Players()
		if participant == guest && room.Transition(domain.StateAwaitingGuestSig, domain.StateAwaitingHostSig) {
			s.deliverSignatureRequest(room, host, payload, []string{guest, host})
		}
		return nil
	}
	return s.openSession(ctx, room)
}

// openSession finalizes a completed signature round. On any failure the room
// falls back to ready so the pair can renegotiate.
func (s *EngineService) openSession(ctx context.Context, room *rooms.Room) error {
	if !room.Transition(domain.StateAwaitingHostSig, domain.StateOpeningSession) &&
		!room.Transition(domain.StateAwaitingGuestSig, domain.StateOpeningSession) {
		return nil
	}

	payload, sigs, err := s.collector.Consume(room.ID())
	if err != nil {
		room.SetState(domain.StateReady)
		return fmt.Errorf("cannot consume signature round: %w", err)
	}

	engineSig, err := s.signer.Sign(payload)
	if err != nil {
		room.SetState(domain.StateReady)
		return fmt.Errorf("cannot counter-sign session payload: %w", err)
	}
	sigs = append(sigs, engineSig)

	sessionID, err := s.broker.OpenSession(ctx, payload, sigs)
	if err != nil {
		room.SetState(domain.StateReady)
		s.publishSettlementEvent(ctx, "failed", room.ID(), "", decimal.Zero, err.Error())
		return fmt.Errorf("cannot open settlement session: %w", err)
	}

	room.SetSessionID(sessionID)
	room.SetState(domain.StateSessionActive)
	s.registry.Broadcast(room.ID(), protocol.NewRoomState(room.Snapshot()))
	s.publishSettlementEvent(ctx, "opened", room.ID(), sessionID, decimal.Zero, "")

	slog.Info("settlement session opened", "room", room.ID(), "session", sessionID)
	return nil
}

// PurchaseItems settles a buy. Quotes are always recomputed server-side and
// the submitted total must match them exactly; the client-sent per-item prices
// are never trusted. A buyer outside any room gets an ephemeral solo session
// opened and closed within this call.
func (s *EngineService) PurchaseItems(ctx context.Context, sender rooms.Sender, buyer string, items []domain.PurchaseItem, total decimal.Decimal, signature string) error {
	buyer = domain.CanonicalAddress(buyer)

	itemIDs := make([]int, len(items))
	for i, it := range items {
		itemIDs[i] = it.ID
	}
	payload, err := settlement.PurchasePayload(buyer, itemIDs, total)
	if err != nil {
		return fmt.Errorf("cannot build purchase payload: %w", err)
	}
	if err := s.verifier.Verify(payload, signature, buyer); err != nil {
		return fmt.Errorf("purchase authorization from %s: %w", buyer, err)
	}

	now := time.Now()
	quotes := make([]decimal.Decimal, len(items))
	colors := make([]string, len(items))
	sum := decimal.Zero
	for i, it := range items {
		record, err := s.items.ReadOne(ctx, it.ID)
		if err != nil {
			return fmt.Errorf("cannot read item %d: %w", it.ID, err)
		}
		quotes[i] = s.pricing.Quote(record, now)
		colors[i] = it.Color
		sum = sum.Add(quotes[i])
	}
	if !total.Equal(sum) {
		return fmt.Errorf("submitted %s, quoted %s: %w", total, sum, myErrors.ErrPriceMismatch)
	}

	var settledID string
	room, inRoom := s.registry.RoomOf(buyer)
	if inRoom {
		if room.SessionID() == "" || room.State() != domain.StateSessionActive {
			return fmt.Errorf("room %s: %w", room.ID(), myErrors.ErrNoActiveSession)
		}
		settledID, err = s.closeRoomSession(ctx, room, buyer, total)
		if err != nil {
			return err
		}
	} else {
		settledID, err = s.soloSession(ctx, sender, buyer, total)
		if err != nil {
			return err
		}
	}

	for i, it := range items {
		if err := s.items.UpdateOnPurchase(ctx, it.ID, buyer, quotes[i], colors[i], now); err != nil {
			slog.Error("cannot persist purchased item", "item", it.ID, "error", err)
		}
	}
	if err := s.spend.Increment(ctx, buyer, total); err != nil {
		slog.Error("cannot record spending", "buyer", buyer, "error", err)
	}

	s.recordPurchase(ctx, buyer, room, settledID, items, quotes, total, now)
	s.broadcastItemsState(ctx)
	return nil
}

// closeRoomSession finalizes an active two-party session with the whole total
// allocated to the engine seat and returns the settled session id. On
// rejection the room stays funded and ready for another attempt.
func (s *EngineService) closeRoomSession(ctx context.Context, room *rooms.Room, buyer string, total decimal.Decimal) (string, error) {
	if !room.Transition(domain.StateSessionActive, domain.StateClosingSession) {
		return "", fmt.Errorf("room %s: %w", room.ID(), myErrors.ErrNoActiveSession)
	}

	sessionID := room.SessionID()
	final := []settlement.Allocation{
		{Participant: buyer, Asset: s.asset, Amount: decimal.Zero},
		{Participant: s.signer.Address(), Asset: s.asset, Amount: total},
	}

	closeSig, err := s.signCloseParams(sessionID, final)
	if err != nil {
		room.SetState(domain.StateSessionActive)
		return "", err
	}

	receipt, err := s.broker.CloseSession(ctx, sessionID, final, []string{closeSig})
	if err != nil {
		room.SetState(domain.StateSessionActive)
		s.publishSettlementEvent(ctx, "failed", room.ID(), sessionID, total, err.Error())
		return "", fmt.Errorf("cannot close settlement session: %w", err)
	}

	room.ClearSessionID()
	room.SetState(domain.StateClosed)
	s.registry.Broadcast(room.ID(), protocol.NewRoomState(room.Snapshot()))
	s.publishSettlementEvent(ctx, "closed", room.ID(), receipt.AppSessionID, total, "")

	// the room's purpose is served; free both seats for new rooms
	s.registry.CloseRoom(room.ID())
	s.publishRoomEvent(ctx, "closed", room)
	return receipt.AppSessionID, nil
}

// soloSession runs the full open-then-close settlement cycle for a buyer who
// is not seated in any room and returns the settled session id. The ephemeral
// room exists only for the duration of this call.
func (s *EngineService) soloSession(ctx context.Context, sender rooms.Sender, buyer string, total decimal.Decimal) (string, error) {
	roomID := s.registry.CreateRoom(total)
	defer func() {
		s.collector.Invalidate(roomID)
		s.registry.CloseRoom(roomID)
	}()

	if _, err := s.registry.JoinRoom(roomID, buyer, sender, total); err != nil {
		return "", fmt.Errorf("cannot seat solo buyer: %w", err)
	}

	sessionPayload, err := settlement.NewSessionPayload(
		[]string{buyer}, s.signer.Address(), s.protocol, s.asset, total, s.challenge,
	)
	if err != nil {
		return "", fmt.Errorf("cannot build solo session payload: %w", err)
	}
	// the buyer's purchase signature covers the purchase bytes, not the
	// session bytes, so the solo session carries only the engine signature
	engineSig, err := s.signer.Sign(sessionPayload)
	if err != nil {
		return "", fmt.Errorf("cannot sign solo session payload: %w", err)
	}

	sessionID, err := s.broker.OpenSession(ctx, sessionPayload, []string{engineSig})
	if err != nil {
		s.publishSettlementEvent(ctx, "failed", roomID, "", total, err.Error())
		return "", fmt.Errorf("cannot open solo settlement session: %w", err)
	}

	final := []settlement.Allocation{
		{Participant: buyer, Asset: s.asset, Amount: decimal.Zero},
		{Participant: s.signer.Address(), Asset: s.asset, Amount: total},
	}
	closeSig, err := s.signCloseParams(sessionID, final)
	if err != nil {
		return "", err
	}
	receipt, err := s.broker.CloseSession(ctx, sessionID, final, []string{closeSig})
	if err != nil {
		s.publishSettlementEvent(ctx, "failed", roomID, sessionID, total, err.Error())
		return "", fmt.Errorf("cannot close solo settlement session: %w", err)
	}

	s.publishSettlementEvent(ctx, "closed", roomID, receipt.AppSessionID, total, "")
	return receipt.AppSessionID, nil
}

// signCloseParams signs the exact bytes the broker will put on the wire for
// the close request.
func (s *EngineService) signCloseParams(sessionID string, final []settlement.Allocation) (string, error) {
	raw, err := json.Marshal(settlement.CloseParams{AppSessionID: sessionID, Allocations: final})
	if err != nil {
		return "", fmt.Errorf("cannot marshal close params: %w", err)
	}
	sig, err := s.signer.Sign(raw)
	if err != nil {
		return "", fmt.Errorf("cannot sign close params: %w", err)
	}
	return sig, nil
}

// ItemsState sends the full item board with live quotes to one client.
func (s *EngineService) ItemsState(ctx context.Context, sender rooms.Sender) error {
	msg, err := s.itemsStateMessage(ctx)
	if err != nil {
		return err
	}
	if err := sender.Send(msg); err != nil {
		return fmt.Errorf("cannot deliver itemsState: %w", err)
	}
	return nil
}

func (s *EngineService) itemsStateMessage(ctx context.Context) (protocol.ItemsState, error) {
	records, err := s.items.ReadAll(ctx)
	if err != nil {
		return protocol.ItemsState{}, fmt.Errorf("cannot read items: %w", err)
	}

	now := time.Now()
	states := make([]protocol.ItemState, len(records))
	for i, rec := range records {
		states[i] = protocol.ItemState{
			ID:         rec.ID,
			Color:      rec.Color,
			Owner:      rec.Owner,
			Price:      s.pricing.Quote(rec, now),
			LastPrice:  rec.LastPrice,
			LastBought: rec.LastBought,
		}
	}
	return protocol.NewItemsState(states), nil
}

// broadcastItemsState pushes the post-purchase board to every connection,
// spectators included.
func (s *EngineService) broadcastItemsState(ctx context.Context) {
	if s.broadcast == nil {
		return
	}
	msg, err := s.itemsStateMessage(ctx)
	if err != nil {
		slog.Error("cannot build itemsState broadcast", "error", err)
		return
	}
	s.broadcast.Broadcast(msg)
}

func (s *EngineService) ListAvailableRooms(ctx context.Context, sender rooms.Sender) error {
	if err := sender.Send(protocol.NewAvailableRooms(s.registry.ListAvailable())); err != nil {
		return fmt.Errorf("cannot deliver availableRooms: %w", err)
	}
	return nil
}

// Disconnect tears down the participant's room membership. Any pending
// signature round for the room is void: the remaining player would otherwise
// hold a payload naming a vanished counter-party.
func (s *EngineService) Disconnect(ctx context.Context, participant string) {
	room, deleted, err := s.registry.LeaveRoom(participant)
	if err != nil {
		return
	}

	s.collector.Invalidate(room.ID())

	if deleted {
		s.publishRoomEvent(ctx, "closed", room)
		return
	}
	room.SetState(domain.StateWaitingForSecond)
	room.ClearSessionID()
	s.registry.Broadcast(room.ID(), protocol.NewRoomState(room.Snapshot()))
	s.publishRoomEvent(ctx, "vacated", room)
}

func (s *EngineService) publishRoomEvent(ctx context.Context, eventType string, room *rooms.Room) {
	if s.events == nil {
		return
	}
	host, guest := room.Players()
	ev := natsjs.RoomEvent{
		EventID:     uuid.New().String(),
		Type:        eventType,
		RoomID:      room.ID(),
		Host:        host,
		Guest:       guest,
		WagerAmount: room.Wager().String(),
		At:          time.Now(),
	}
	if err := s.events.PublishRoomEvent(ctx, ev); err != nil {
		slog.Warn("cannot publish room event", "type", eventType, "room", room.ID(), "error", err)
	}
}

func (s *EngineService) publishSettlementEvent(ctx context.Context, eventType, roomID, sessionID string, total decimal.Decimal, reason string) {
	if s.events == nil {
		return
	}
	ev := natsjs.SettlementEvent{
		EventID:   uuid.New().String(),
		Type:      eventType,
		RoomID:    roomID,
		SessionID: sessionID,
		Reason:    reason,
		At:        time.Now(),
	}
	if !total.IsZero() {
		ev.Total = total.String()
	}
	if err := s.events.PublishSettlementEvent(ctx, ev); err != nil {
		slog.Warn("cannot publish settlement event", "type", eventType, "room", roomID, "error", err)
	}
}

func (s *EngineService) recordPurchase(ctx context.Context, buyer string, room *rooms.Room, sessionID string, items []domain.PurchaseItem, quotes []decimal.Decimal, total decimal.Decimal, at time.Time) {
	if s.audit == nil {
		return
	}
	ev := kafka.PurchaseEvent{
		Buyer:      buyer,
		SessionID:  sessionID,
		TotalPrice: total.String(),
		SettledAt:  at,
	}
	if room != nil {
		ev.RoomID = room.ID()
	}
	ev.Items = make([]kafka.PurchaseEventItem, len(items))
	for i, it := range items {
		ev.Items[i] = kafka.PurchaseEventItem{ID: it.ID, Color: it.Color, Price: quotes[i].String()}
	}
	if err := s.audit.RecordPurchase(ctx, ev); err != nil {
		slog.Warn("cannot write purchase audit record", "buyer", buyer, "error", err)
	}
}
