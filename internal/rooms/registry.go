package rooms

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

// Registry owns every live room plus the global address-to-room index. A
// participant address belongs to at most one room at a time; the index
// enforces that. Rooms are in-memory only and disappear with the process.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	addrToRoom map[string]string
}

type JoinResult struct {
	Room  *Room
	Role  domain.Role
	Ready bool
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		addrToRoom: make(map[string]string),
	}
}

// CreateRoom allocates a fresh empty room. Wager validity is the caller's
// concern; the registry only pins the value for later join checks.
func (g *Registry) CreateRoom(wager decimal.Decimal) string {
	room := &Room{
		id:        uuid.New().String(),
		conns:     make(map[string]connection),
		wager:     wager,
		state:     domain.StateEmpty,
		createdAt: time.Now(),
	}

	g.mu.Lock()
	g.rooms[room.id] = room
	g.mu.Unlock()

	return room.id
}

// JoinRoom seats a participant, host seat first. Ready flips the moment the
// second seat is taken and is reported exactly once per fill.
func (g *Registry) JoinRoom(roomID, addr string, sender Sender, wager decimal.Decimal) (JoinResult, error) {
	eoa := domain.CanonicalAddress(addr)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.addrToRoom[eoa]; taken {
		return JoinResult{}, myErrors.ErrAlreadyInRoom
	}

	room, ok := g.rooms[roomID]
	if !ok {
		return JoinResult{}, myErrors.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.wager.Equal(wager) {
		return JoinResult{}, myErrors.ErrWagerMismatch
	}
	if room.host != "" && room.guest != "" {
		return JoinResult{}, myErrors.ErrRoomFull
	}

	var role domain.Role
	if room.host == "" {
		room.host = eoa
		role = domain.RoleHost
	} else {
		room.guest = eoa
		role = domain.RoleGuest
	}

	room.conns[eoa] = connection{sender: sender, role: role}
	g.addrToRoom[eoa] = roomID

	becameReady := false
	if room.host != "" && room.guest != "" && !room.ready {
		room.ready = true
		becameReady = true
		room.state = domain.StateReady
		slog.Info("room ready", "roomId", roomID, "host", room.host, "guest", room.guest)
	} else if !room.ready {
		room.state = domain.StateWaitingForSecond
	}

	return JoinResult{Room: room, Role: role, Ready: becameReady}, nil
}

// LeaveRoom vacates the participant's seat. The room is deleted once both
// seats are empty; otherwise it drops back to waiting so the seat can be
// refilled and negotiation restarted.
func (g *Registry) LeaveRoom(addr string) (*Room, bool, error) {
	eoa := domain.CanonicalAddress(addr)

	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok := g.addrToRoom[eoa]
	if !ok {
		return nil, false, myErrors.ErrNotInRoom
	}
	delete(g.addrToRoom, eoa)

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, false, myErrors.ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	delete(room.conns, eoa)
	switch eoa {
	case room.host:
		room.host = ""
	case room.guest:
		room.guest = ""
	}

	if room.host == "" && room.guest == "" {
		delete(g.rooms, roomID)
		return room, true, nil
	}

	room.ready = false
	room.state = domain.StateWaitingForSecond
	return room, false, nil
}

// CloseRoom tears a room down regardless of occupancy and unindexes every
// seated participant.
func (g *Registry) CloseRoom(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return
	}

	room.mu.Lock()
	for eoa := range room.conns {
		delete(g.addrToRoom, eoa)
	}
	if room.host != "" {
		delete(g.addrToRoom, room.host)
	}
	if room.guest != "" {
		delete(g.addrToRoom, room.guest)
	}
	room.mu.Unlock()

	delete(g.rooms, roomID)
}

func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomID]
	return room, ok
}

// RoomOf resolves the room a participant currently occupies.
func (g *Registry) RoomOf(addr string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.addrToRoom[domain.CanonicalAddress(addr)]
	if !ok {
		return nil, false
	}
	room, ok := g.rooms[roomID]
	return room, ok
}

// Broadcast sends a message to every open connection in the room. Dead
// transports are skipped; delivery is best effort.
func (g *Registry) Broadcast(roomID string, msg any) {
	g.mu.RLock()
	room, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return
	}

	room.mu.Lock()
	senders := make([]Sender, 0, len(room.conns))
	for _, c := range room.conns {
		senders = append(senders, c.sender)
	}
	room.mu.Unlock()

	for _, s := range senders {
		if err := s.Send(msg); err != nil {
			slog.Debug("skipping closed connection during broadcast", "roomId", roomID)
		}
	}
}

// ListAvailable snapshots the rooms that can still be joined: seated host,
// empty guest seat, no settlement session underway.
func (g *Registry) ListAvailable() []domain.AvailableRoom {
	g.mu.RLock()
	defer g.mu.RUnlock()

	available := make([]domain.AvailableRoom, 0)
	for id, room := range g.rooms {
		room.mu.Lock()
		if room.host != "" && room.guest == "" && room.sessionID == "" {
			available = append(available, domain.AvailableRoom{
				RoomID:      id,
				HostID:      room.host,
				CreatedAt:   room.createdAt,
				WagerAmount: room.wager,
			})
		}
		room.mu.Unlock()
	}
	return available
}
