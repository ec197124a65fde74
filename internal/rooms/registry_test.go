package rooms

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (f *fakeSender) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

func TestJoinRoomFillsSeatsHostFirst(t *testing.T) {
	reg := NewRegistry()
	roomID := reg.CreateRoom(one())

	res, err := reg.JoinRoom(roomID, "0xAAA", &fakeSender{}, one())
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	if res.Role != domain.RoleHost || res.Ready {
		t.Fatalf("expected host role and not ready, got %v ready=%v", res.Role, res.Ready)
	}

	res, err = reg.JoinRoom(roomID, "0xBBB", &fakeSender{}, one())
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}
	if res.Role != domain.RoleGuest || !res.Ready {
		t.Fatalf("expected guest role and ready, got %v ready=%v", res.Role, res.Ready)
	}
	if !res.Room.IsReady() {
		t.Fatal("room should be ready with both seats filled")
	}

	if _, err := reg.JoinRoom(roomID, "0xCCC", &fakeSender{}, one()); !errors.Is(err, myErrors.ErrRoomFull) {
		t.Fatalf("third join: expected ErrRoomFull, got %v", err)
	}
}

func TestJoinRoomWagerMismatchLeavesRoomUntouched(t *testing.T) {
	reg := NewRegistry()
	roomID := reg.CreateRoom(one())
	if _, err := reg.JoinRoom(roomID, "0xAAA", &fakeSender{}, one()); err != nil {
		t.Fatalf("host join: %v", err)
	}

	_, err := reg.JoinRoom(roomID, "0xBBB", &fakeSender{}, decimal.NewFromInt(2))
	if !errors.Is(err, myErrors.ErrWagerMismatch) {
		t.Fatalf("expected ErrWagerMismatch, got %v", err)
	}

	room, _ := reg.Get(roomID)
	if host, guest := room.Players(); host != "0xaaa" || guest != "" {
		t.Fatalf("room state changed on rejected join: host=%q guest=%q", host, guest)
	}
	if room.State() != domain.StateWaitingForSecond {
		t.Fatalf("expected waitingForSecond, got %s", room.State())
	}
}

func TestJoinRoomRejectsSecondMembership(t *testing.T) {
	reg := NewRegistry()
	first := reg.CreateRoom(one())
	second := reg.CreateRoom(one())

	if _, err := reg.JoinRoom(first, "0xAAA", &fakeSender{}, one()); err != nil {
		t.Fatalf("join: %v", err)
	}
	// same address, different casing
	if _, err := reg.JoinRoom(second, "0xaaa", &fakeSender{}, one()); !errors.Is(err, myErrors.ErrAlreadyInRoom) {
		t.Fatalf("expected ErrAlreadyInRoom, got %v", err)
	}
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.JoinRoom("nope", "0xAAA", &fakeSender{}, one()); !errors.Is(err, myErrors.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	roomID := reg.CreateRoom(one())
	reg.JoinRoom(roomID, "0xAAA", &fakeSender{}, one())
	reg.JoinRoom(roomID, "0xBBB", &fakeSender{}, one())

	if _, deleted, err := reg.LeaveRoom("0xAAA"); err != nil || deleted {
		t.Fatalf("first leave: err=%v deleted=%v", err, deleted)
	}

	room, ok := reg.Get(roomID)
	if !ok {
		t.Fatal("room should survive with one seat filled")
	}
	if room.IsReady() {
		t.Fatal("room should not stay ready after a seat vacated")
	}

	if _, deleted, err := reg.LeaveRoom("0xBBB"); err != nil || !deleted {
		t.Fatalf("second leave: err=%v deleted=%v", err, deleted)
	}
	if _, ok := reg.Get(roomID); ok {
		t.Fatal("room should be gone once both seats vacated")
	}

	// vacated participants can join again
	if _, err := reg.JoinRoom(reg.CreateRoom(one()), "0xAAA", &fakeSender{}, one()); err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
}

func TestLeaveRoomNotInRoom(t *testing.T) {
	reg := NewRegistry()
	if _, _, err := reg.LeaveRoom("0xAAA"); !errors.Is(err, myErrors.ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	reg := NewRegistry()
	roomID := reg.CreateRoom(one())
	alive := &fakeSender{}
	dead := &fakeSender{closed: true}
	reg.JoinRoom(roomID, "0xAAA", alive, one())
	reg.JoinRoom(roomID, "0xBBB", dead, one())

	reg.Broadcast(roomID, "hello")

	if alive.count() != 1 {
		t.Fatalf("live connection should receive broadcast, got %d", alive.count())
	}
	if dead.count() != 0 {
		t.Fatal("closed connection should be skipped")
	}
}

func TestListAvailableFiltersSeatedAndSettling(t *testing.T) {
	reg := NewRegistry()

	open := reg.CreateRoom(one())
	reg.JoinRoom(open, "0xAAA", &fakeSender{}, one())

	full := reg.CreateRoom(one())
	reg.JoinRoom(full, "0xBBB", &fakeSender{}, one())
	reg.JoinRoom(full, "0xCCC", &fakeSender{}, one())

	settling := reg.CreateRoom(one())
	reg.JoinRoom(settling, "0xDDD", &fakeSender{}, one())
	room, _ := reg.Get(settling)
	room.SetSessionID("session-1")

	reg.CreateRoom(one()) // hostless room

	got := reg.ListAvailable()
	if len(got) != 1 || got[0].RoomID != open {
		t.Fatalf("expected only %s available, got %+v", open, got)
	}
	if got[0].HostID != "0xaaa" {
		t.Fatalf("expected canonical host address, got %q", got[0].HostID)
	}
}

func TestConcurrentJoinsSingleWinnerPerSeat(t *testing.T) {
	reg := NewRegistry()
	roomID := reg.CreateRoom(one())

	addrs := []string{"0x1", "0x2", "0x3", "0x4", "0x5", "0x6"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if _, err := reg.JoinRoom(roomID, addr, &fakeSender{}, one()); err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}(addr)
	}
	wg.Wait()

	if joined != 2 {
		t.Fatalf("expected exactly 2 winners for 2 seats, got %d", joined)
	}
}
