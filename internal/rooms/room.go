package rooms

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

// Sender delivers one outbound protocol message to a connected client.
// The registry never touches sockets directly.
type Sender interface {
	Send(v any) error
}

type connection struct {
	sender Sender
	role   domain.Role
}

// Room is an ephemeral two-party pairing. All mutations go through the
// registry or through Room methods; both lock the room's own mutex, so
// concurrent handler tasks never interleave a transition.
type Room struct {
	mu sync.Mutex

	id        string
	host      string
	guest     string
	conns     map[string]connection
	wager     decimal.Decimal
	ready     bool
	state     domain.RoomState
	sessionID string
	createdAt time.Time
}

// Snapshot is the broadcastable view of a room.
type Snapshot struct {
	RoomID      string           `json:"roomId"`
	Host        string           `json:"host,omitempty"`
	Guest       string           `json:"guest,omitempty"`
	State       domain.RoomState `json:"state"`
	WagerAmount decimal.Decimal  `json:"wagerAmount"`
	IsReady     bool             `json:"isReady"`
	SessionID   string           `json:"sessionId,omitempty"`
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) Wager() decimal.Decimal {
	return r.wager
}

func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Players returns the host and guest addresses; either may be empty.
func (r *Room) Players() (host, guest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host, r.guest
}

func (r *Room) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) SetState(s domain.RoomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

// Transition moves the state machine from one state to another. It reports
// whether the move happened, so duplicate triggers become no-ops instead of
// double-firing side effects.
func (r *Room) Transition(from, to domain.RoomState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

func (r *Room) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Room) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

func (r *Room) ClearSessionID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
}

// SenderOf returns the transport handle of a currently connected participant.
func (r *Room) SenderOf(addr string) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[domain.CanonicalAddress(addr)]
	if !ok {
		return nil, false
	}
	return c.sender, true
}

func (r *Room) RoleOf(addr string) (domain.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[domain.CanonicalAddress(addr)]
	if !ok {
		return "", false
	}
	return c.role, true
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RoomID:      r.id,
		Host:        r.host,
		Guest:       r.guest,
		State:       r.state,
		WagerAmount: r.wager,
		IsReady:     r.ready,
		SessionID:   r.sessionID,
	}
}
