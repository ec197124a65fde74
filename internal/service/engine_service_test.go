package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
	myErrors "github.com/KStasi/pixel-map/internal/errors"
	"github.com/KStasi/pixel-map/internal/infrastructure/kafka"
	"github.com/KStasi/pixel-map/internal/pricing"
	"github.com/KStasi/pixel-map/internal/protocol"
	"github.com/KStasi/pixel-map/internal/rooms"
	"github.com/KStasi/pixel-map/internal/settlement"
	"github.com/KStasi/pixel-map/internal/signatures"
	"github.com/KStasi/pixel-map/internal/signer"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []any
}

func (f *fakeSender) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeSender) signatureRequest(t *testing.T) protocol.SignatureRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if req, ok := f.messages[i].(protocol.SignatureRequest); ok {
			return req
		}
	}
	t.Fatal("no signatureRequest delivered")
	return protocol.SignatureRequest{}
}

func (f *fakeSender) count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		switch v := m.(type) {
		case protocol.SignatureRequest:
			if v.Type == msgType {
				n++
			}
		case protocol.SignatureConfirmed:
			if v.Type == msgType {
				n++
			}
		case protocol.RoomReady:
			if v.Type == msgType {
				n++
			}
		case protocol.RoomCreated:
			if v.Type == msgType {
				n++
			}
		}
	}
	return n
}

type fakeBroker struct {
	mu         sync.Mutex
	openCalls  int
	closeCalls int
	openSigs   []string
	closeFinal []settlement.Allocation
	closedID   string
	openErr    error
	closeErr   error
}

func (f *fakeBroker) OpenSession(_ context.Context, _ json.RawMessage, signatures []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	f.openSigs = signatures
	if f.openErr != nil {
		return "", f.openErr
	}
	return "session-1", nil
}

func (f *fakeBroker) CloseSession(_ context.Context, sessionID string, final []settlement.Allocation, _ []string) (settlement.CloseReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closedID = sessionID
	f.closeFinal = final
	if f.closeErr != nil {
		return settlement.CloseReceipt{}, f.closeErr
	}
	return settlement.CloseReceipt{AppSessionID: sessionID, Status: "closed"}, nil
}

type fakeItems struct {
	mu    sync.Mutex
	items map[int]domain.Item
}

func (f *fakeItems) ReadAll(context.Context) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeItems) ReadOne(_ context.Context, id int) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return domain.Item{}, errors.New("no such item")
	}
	return it, nil
}

func (f *fakeItems) UpdateOnPurchase(_ context.Context, id int, owner string, price decimal.Decimal, color string, boughtAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[id]
	it.ID = id
	it.Owner = owner
	it.LastPrice = price
	it.Color = color
	it.LastBought = &boughtAt
	f.items[id] = it
	return nil
}

type fakeSpend struct {
	mu     sync.Mutex
	totals map[string]decimal.Decimal
}

func (f *fakeSpend) Increment(_ context.Context, participant string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[participant] = f.totals[participant].Add(amount)
	return nil
}

func (f *fakeSpend) TotalSpent(_ context.Context, participant string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[participant], nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []kafka.PurchaseEvent
}

func (f *fakeAudit) RecordPurchase(_ context.Context, ev kafka.PurchaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeHub struct {
	mu    sync.Mutex
	calls int
	last  any
}

func (f *fakeHub) Broadcast(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = v
}

type testRig struct {
	engine *EngineService
	broker *fakeBroker
	items  *fakeItems
	spend  *fakeSpend
	hub    *fakeHub
	audit  *fakeAudit

	hostKey, guestKey *signer.EOASigner
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	hostKey, err := signer.NewEOASigner(strings.Repeat("11", 32))
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	guestKey, err := signer.NewEOASigner(strings.Repeat("22", 32))
	if err != nil {
		t.Fatalf("guest key: %v", err)
	}
	engineKey, err := signer.NewEOASigner(strings.Repeat("33", 32))
	if err != nil {
		t.Fatalf("engine key: %v", err)
	}

	old := time.Now().Add(-2 * time.Minute)
	broker := &fakeBroker{}
	items := &fakeItems{items: map[int]domain.Item{
		7: {ID: 7, Color: "#ff0000", LastPrice: decimal.NewFromFloat(3.5), LastBought: &old},
		8: {ID: 8, Color: "#00ff00", LastPrice: decimal.NewFromInt(1), LastBought: &old},
	}}
	spend := &fakeSpend{totals: map[string]decimal.Decimal{}}
	hub := &fakeHub{}
	audit := &fakeAudit{}

	engine := NewEngineService(EngineDeps{
		Registry:  rooms.NewRegistry(),
		Collector: signatures.NewCollector(),
		Broker:    broker,
		Items:     items,
		Spend:     spend,
		Signer:    engineKey,
		Verifier:  signer.RecoverVerifier{},
		Pricing:   pricing.NewModel(decimal.NewFromInt(1), time.Minute),
		Audit:     audit,
		Protocol:  "NitroRPC/0.2",
		Asset:     "usdc",
		Challenge: 86400,
	})
	engine.SetBroadcaster(hub)

	return &testRig{engine: engine, broker: broker, items: items, spend: spend, hub: hub, audit: audit, hostKey: hostKey, guestKey: guestKey}
}

// runNegotiation walks a room from two joins through both signatures to an
// open session and returns the room id.
func (r *testRig) runNegotiation(t *testing.T, host, guest *fakeSender) string {
	t.Helper()
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := r.engine.JoinRoom(ctx, host, "", r.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	var created protocol.RoomCreated
	host.mu.Lock()
	for _, m := range host.messages {
		if c, ok := m.(protocol.RoomCreated); ok {
			created = c
		}
	}
	host.mu.Unlock()
	if created.RoomID == "" {
		t.Fatal("host never received roomCreated")
	}

	if err := r.engine.JoinRoom(ctx, guest, created.RoomID, r.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	guestReq := guest.signatureRequest(t)
	guestSig, err := r.guestKey.Sign(guestReq.RequestToSign)
	if err != nil {
		t.Fatalf("guest sign: %v", err)
	}
	if err := r.engine.SubmitSignature(ctx, created.RoomID, r.guestKey.Address(), guestSig); err != nil {
		t.Fatalf("guest submit: %v", err)
	}

	hostReq := host.signatureRequest(t)
	if string(hostReq.RequestToSign) != string(guestReq.RequestToSign) {
		t.Fatal("host and guest were offered different payloads")
	}
	hostSig, err := r.hostKey.Sign(hostReq.RequestToSign)
	if err != nil {
		t.Fatalf("host sign: %v", err)
	}
	if err := r.engine.SubmitSignature(ctx, created.RoomID, r.hostKey.Address(), hostSig); err != nil {
		t.Fatalf("host submit: %v", err)
	}
	return created.RoomID
}

func TestNegotiationOpensSessionWithAllSignatures(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}

	roomID := rig.runNegotiation(t, host, guest)

	if rig.broker.openCalls != 1 {
		t.Fatalf("open calls = %d, want 1", rig.broker.openCalls)
	}
	if len(rig.broker.openSigs) != 3 {
		t.Fatalf("open carried %d signatures, want guest+host+engine", len(rig.broker.openSigs))
	}
	if host.count(protocol.TypeRoomReady) != 1 || guest.count(protocol.TypeRoomReady) != 1 {
		t.Fatal("roomReady was not broadcast to both players")
	}
	if guest.count(protocol.TypeSignatureConfirmed) != 1 {
		t.Fatal("guest signature was not confirmed")
	}

	room, ok := rig.engine.registry.Get(roomID)
	if !ok {
		t.Fatal("room vanished after negotiation")
	}
	if room.State() != domain.StateSessionActive {
		t.Fatalf("room state = %s, want %s", room.State(), domain.StateSessionActive)
	}
	if room.SessionID() != "session-1" {
		t.Fatalf("session id = %q", room.SessionID())
	}
}

func TestGuestSignsBeforeHost(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()
	if err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	if host.count(protocol.TypeSignatureRequest) != 0 {
		t.Fatal("host was asked to sign before the guest committed")
	}
	if guest.count(protocol.TypeSignatureRequest) != 1 {
		t.Fatal("guest was not asked to sign")
	}
}

func TestPurchaseClosesSessionAndTransfersItems(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()

	rig.runNegotiation(t, host, guest)

	buyer := rig.guestKey.Address()
	items := []domain.PurchaseItem{
		{ID: 7, Color: "#123456", Price: decimal.NewFromFloat(3.5)},
		{ID: 8, Color: "#654321", Price: decimal.NewFromInt(1)},
	}
	total := decimal.NewFromFloat(4.5)
	payload, err := settlement.PurchasePayload(buyer, []int{7, 8}, total)
	if err != nil {
		t.Fatalf("purchase payload: %v", err)
	}
	sig, err := rig.guestKey.Sign(payload)
	if err != nil {
		t.Fatalf("sign purchase: %v", err)
	}

	if err := rig.engine.PurchaseItems(ctx, guest, buyer, items, total, sig); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if rig.broker.closeCalls != 1 {
		t.Fatalf("close calls = %d, want 1", rig.broker.closeCalls)
	}
	if rig.broker.closedID != "session-1" {
		t.Fatalf("closed session %q, want session-1", rig.broker.closedID)
	}
	final := rig.broker.closeFinal
	if len(final) != 2 {
		t.Fatalf("final allocations = %d, want 2", len(final))
	}
	if final[0].Participant != buyer || !final[0].Amount.IsZero() {
		t.Fatalf("buyer allocation = %+v, want zero", final[0])
	}
	if !final[1].Amount.Equal(total) {
		t.Fatalf("engine allocation = %s, want %s", final[1].Amount, total)
	}

	it, err := rig.items.ReadOne(ctx, 7)
	if err != nil {
		t.Fatalf("read item 7: %v", err)
	}
	if it.Owner != buyer {
		t.Fatalf("item 7 owner = %q, want buyer", it.Owner)
	}
	if !it.LastPrice.Equal(decimal.NewFromFloat(3.5)) {
		t.Fatalf("item 7 charged %s, want server quote 3.5", it.LastPrice)
	}
	if it.Color != "#123456" {
		t.Fatalf("item 7 color = %q", it.Color)
	}

	spent, _ := rig.spend.TotalSpent(ctx, buyer)
	if !spent.Equal(total) {
		t.Fatalf("recorded spending = %s, want %s", spent, total)
	}

	if _, inRoom := rig.engine.registry.RoomOf(buyer); inRoom {
		t.Fatal("buyer still seated after the room settled")
	}

	rig.audit.mu.Lock()
	if len(rig.audit.events) != 1 {
		t.Fatalf("audit records = %d, want 1", len(rig.audit.events))
	}
	record := rig.audit.events[0]
	rig.audit.mu.Unlock()
	if record.SessionID != "session-1" {
		t.Fatalf("audit session id = %q, want the settled session", record.SessionID)
	}
	if record.Buyer != buyer || record.TotalPrice != "4.5" || len(record.Items) != 2 {
		t.Fatalf("audit record = %+v", record)
	}

	rig.hub.mu.Lock()
	defer rig.hub.mu.Unlock()
	if rig.hub.calls != 1 {
		t.Fatalf("itemsState broadcasts = %d, want 1", rig.hub.calls)
	}
	if _, ok := rig.hub.last.(protocol.ItemsState); !ok {
		t.Fatalf("broadcast was %T, want itemsState", rig.hub.last)
	}
}

func TestPurchaseRejectsStaleTotal(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()

	rig.runNegotiation(t, host, guest)

	buyer := rig.guestKey.Address()
	items := []domain.PurchaseItem{{ID: 7, Color: "#123456", Price: decimal.NewFromInt(2)}}
	total := decimal.NewFromInt(2) // live quote is 3.5
	payload, _ := settlement.PurchasePayload(buyer, []int{7}, total)
	sig, _ := rig.guestKey.Sign(payload)

	err := rig.engine.PurchaseItems(ctx, guest, buyer, items, total, sig)
	if !errors.Is(err, myErrors.ErrPriceMismatch) {
		t.Fatalf("err = %v, want ErrPriceMismatch", err)
	}
	if rig.broker.closeCalls != 0 {
		t.Fatal("session was closed despite the price mismatch")
	}
	it, _ := rig.items.ReadOne(ctx, 7)
	if it.Owner != "" {
		t.Fatal("item changed hands despite the price mismatch")
	}
}

func TestPurchaseRequiresActiveSession(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()
	if err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	// negotiation is pending, no session yet
	buyer := rig.guestKey.Address()
	total := decimal.NewFromFloat(3.5)
	payload, _ := settlement.PurchasePayload(buyer, []int{7}, total)
	sig, _ := rig.guestKey.Sign(payload)
	items := []domain.PurchaseItem{{ID: 7, Color: "#123456", Price: total}}

	err := rig.engine.PurchaseItems(ctx, guest, buyer, items, total, sig)
	if !errors.Is(err, myErrors.ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestSoloPurchaseRunsEphemeralSession(t *testing.T) {
	rig := newTestRig(t)
	buyer := rig.guestKey.Address()
	sender := &fakeSender{}
	ctx := context.Background()

	total := decimal.NewFromFloat(3.5)
	payload, _ := settlement.PurchasePayload(buyer, []int{7}, total)
	sig, _ := rig.guestKey.Sign(payload)
	items := []domain.PurchaseItem{{ID: 7, Color: "#abcdef", Price: total}}

	if err := rig.engine.PurchaseItems(ctx, sender, buyer, items, total, sig); err != nil {
		t.Fatalf("solo purchase: %v", err)
	}

	if rig.broker.openCalls != 1 || rig.broker.closeCalls != 1 {
		t.Fatalf("open/close = %d/%d, want 1/1", rig.broker.openCalls, rig.broker.closeCalls)
	}
	if _, inRoom := rig.engine.registry.RoomOf(buyer); inRoom {
		t.Fatal("ephemeral room survived the purchase")
	}
	it, _ := rig.items.ReadOne(ctx, 7)
	if it.Owner != buyer {
		t.Fatal("solo purchase did not transfer the item")
	}

	rig.audit.mu.Lock()
	defer rig.audit.mu.Unlock()
	if len(rig.audit.events) != 1 || rig.audit.events[0].SessionID != "session-1" {
		t.Fatalf("audit records = %+v, want one carrying the settled session", rig.audit.events)
	}
}

func TestSubmitSignatureRejectsForgedSignature(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()
	if err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	req := guest.signatureRequest(t)
	// host key signing on the guest's behalf must not count
	forged, _ := rig.hostKey.Sign(req.RequestToSign)

	err := rig.engine.SubmitSignature(ctx, roomID, rig.guestKey.Address(), forged)
	if !errors.Is(err, myErrors.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if rig.broker.openCalls != 0 {
		t.Fatal("session opened on a forged signature")
	}
}

func TestJoinRejectsWagerMismatch(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), decimal.NewFromInt(1)); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()

	err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), decimal.NewFromInt(2))
	if !errors.Is(err, myErrors.ErrWagerMismatch) {
		t.Fatalf("err = %v, want ErrWagerMismatch", err)
	}
	if guest.count(protocol.TypeRoomReady) != 0 {
		t.Fatal("mismatched guest still saw roomReady")
	}
}

func TestJoinRejectsUnknownWagerValue(t *testing.T) {
	rig := newTestRig(t)
	err := rig.engine.JoinRoom(context.Background(), &fakeSender{}, "", rig.hostKey.Address(), decimal.NewFromFloat(0.5))
	if !errors.Is(err, myErrors.ErrInvalidWagerAmount) {
		t.Fatalf("err = %v, want ErrInvalidWagerAmount", err)
	}
}

func TestDisconnectVoidsPendingNegotiation(t *testing.T) {
	rig := newTestRig(t)
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()
	if err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	req := guest.signatureRequest(t)
	rig.engine.Disconnect(ctx, rig.guestKey.Address())

	// the round died with the guest; a late signature has nowhere to go
	sig, _ := rig.guestKey.Sign(req.RequestToSign)
	err := rig.engine.SubmitSignature(ctx, roomID, rig.guestKey.Address(), sig)
	if !errors.Is(err, myErrors.ErrNotInRoom) && !errors.Is(err, myErrors.ErrNoPendingSession) {
		t.Fatalf("err = %v, want membership or pending-session failure", err)
	}

	room, ok := rig.engine.registry.Get(roomID)
	if !ok {
		t.Fatal("room should survive with the host seated")
	}
	if room.State() != domain.StateWaitingForSecond {
		t.Fatalf("room state = %s, want %s", room.State(), domain.StateWaitingForSecond)
	}
}

func TestSessionOpenFailureRollsBackToReady(t *testing.T) {
	rig := newTestRig(t)
	rig.broker.openErr = errors.New("peer unavailable")
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()
	wager := decimal.NewFromInt(1)

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), wager); err != nil {
		t.Fatalf("host join: %v", err)
	}
	host.mu.Lock()
	roomID := host.messages[0].(protocol.RoomCreated).RoomID
	host.mu.Unlock()
	if err := rig.engine.JoinRoom(ctx, guest, roomID, rig.guestKey.Address(), wager); err != nil {
		t.Fatalf("guest join: %v", err)
	}

	req := guest.signatureRequest(t)
	guestSig, _ := rig.guestKey.Sign(req.RequestToSign)
	if err := rig.engine.SubmitSignature(ctx, roomID, rig.guestKey.Address(), guestSig); err != nil {
		t.Fatalf("guest submit: %v", err)
	}
	hostSig, _ := rig.hostKey.Sign(req.RequestToSign)

	err := rig.engine.SubmitSignature(ctx, roomID, rig.hostKey.Address(), hostSig)
	if err == nil {
		t.Fatal("expected open failure to surface")
	}

	room, _ := rig.engine.registry.Get(roomID)
	if room.State() != domain.StateReady {
		t.Fatalf("room state = %s, want rollback to %s", room.State(), domain.StateReady)
	}
	if room.SessionID() != "" {
		t.Fatal("session id set despite open failure")
	}
}

func TestCloseFailureRollsBackToSessionActive(t *testing.T) {
	rig := newTestRig(t)
	rig.broker.closeErr = errors.New("peer rejected close")
	host, guest := &fakeSender{}, &fakeSender{}
	ctx := context.Background()

	roomID := rig.runNegotiation(t, host, guest)

	buyer := rig.guestKey.Address()
	items := []domain.PurchaseItem{{ID: 7, Color: "#123456", Price: decimal.NewFromFloat(3.5)}}
	total := decimal.NewFromFloat(3.5)
	payload, _ := settlement.PurchasePayload(buyer, []int{7}, total)
	sig, _ := rig.guestKey.Sign(payload)

	err := rig.engine.PurchaseItems(ctx, guest, buyer, items, total, sig)
	if err == nil {
		t.Fatal("expected close failure to surface")
	}

	// session stays live on the peer, so the purchase must be retryable
	room, ok := rig.engine.registry.Get(roomID)
	if !ok {
		t.Fatal("room vanished after failed close")
	}
	if room.State() != domain.StateSessionActive {
		t.Fatalf("room state = %s, want rollback to %s", room.State(), domain.StateSessionActive)
	}
	if room.SessionID() != "session-1" {
		t.Fatalf("session id = %q, want preserved session-1", room.SessionID())
	}

	it, _ := rig.items.ReadOne(ctx, 7)
	if it.Owner != "" {
		t.Fatal("item changed hands despite the failed close")
	}
	spent, _ := rig.spend.TotalSpent(ctx, buyer)
	if !spent.IsZero() {
		t.Fatalf("spending recorded despite the failed close: %s", spent)
	}
	rig.audit.mu.Lock()
	recorded := len(rig.audit.events)
	rig.audit.mu.Unlock()
	if recorded != 0 {
		t.Fatal("audit record written despite the failed close")
	}

	// the peer recovers; the same purchase settles on retry
	rig.broker.closeErr = nil
	if err := rig.engine.PurchaseItems(ctx, guest, buyer, items, total, sig); err != nil {
		t.Fatalf("retry after close failure: %v", err)
	}
}

func TestListAvailableRoomsAndItemsState(t *testing.T) {
	rig := newTestRig(t)
	host := &fakeSender{}
	ctx := context.Background()

	if err := rig.engine.JoinRoom(ctx, host, "", rig.hostKey.Address(), decimal.NewFromInt(1)); err != nil {
		t.Fatalf("host join: %v", err)
	}

	viewer := &fakeSender{}
	if err := rig.engine.ListAvailableRooms(ctx, viewer); err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if err := rig.engine.ItemsState(ctx, viewer); err != nil {
		t.Fatalf("items state: %v", err)
	}

	viewer.mu.Lock()
	defer viewer.mu.Unlock()
	list, ok := viewer.messages[0].(protocol.AvailableRooms)
	if !ok || len(list.Rooms) != 1 {
		t.Fatalf("availableRooms = %+v", viewer.messages[0])
	}
	state, ok := viewer.messages[1].(protocol.ItemsState)
	if !ok || len(state.Items) != 2 {
		t.Fatalf("itemsState = %+v", viewer.messages[1])
	}
	for _, it := range state.Items {
		if it.ID == 7 && !it.Price.Equal(decimal.NewFromFloat(3.5)) {
			t.Fatalf("item 7 quote = %s, want decayed-to-floor 3.5", it.Price)
		}
	}
}
