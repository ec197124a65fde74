package signatures

import (
	"log/slog"
	"sync"

	"github.com/KStasi/pixel-map/internal/domain"
	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

// Collector accumulates participant signatures against one canonical request
// per room. Every signer must sign the exact same bytes; the collector keeps
// the payload so it can be re-delivered verbatim to late signers.
type Collector struct {
	mu      sync.Mutex
	pending map[string]*pendingSession
}

type pendingSession struct {
	roomID       string
	payload      []byte
	participants []string
	signatures   map[string]string
	required     int
}

func NewCollector() *Collector {
	return &Collector{pending: make(map[string]*pendingSession)}
}

// Open starts signature collection for a room. At most one pending session
// per room may exist at a time.
func (c *Collector) Open(roomID string, payload []byte, participants []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[roomID]; exists {
		return myErrors.ErrAlreadyPending
	}

	canonical := make([]string, len(participants))
	for i, p := range participants {
		canonical[i] = domain.CanonicalAddress(p)
	}

	c.pending[roomID] = &pendingSession{
		roomID:       roomID,
		payload:      payload,
		participants: canonical,
		signatures:   make(map[string]string, len(canonical)),
		required:     len(canonical),
	}
	return nil
}

// Add records one participant's signature and reports whether the session is
// now complete. A repeated signature is rejected, never double-counted.
func (c *Collector) Add(roomID, participant, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.pending[roomID]
	if !ok {
		return false, myErrors.ErrNoPendingSession
	}

	eoa := domain.CanonicalAddress(participant)
	if !session.has(eoa) {
		return false, myErrors.ErrUnknownParticipant
	}
	if _, signed := session.signatures[eoa]; signed {
		return false, myErrors.ErrAlreadySigned
	}

	session.signatures[eoa] = signature
	return len(session.signatures) == session.required, nil
}

// Consume returns the canonical payload plus every signature in participant
// order and removes the pending entry. Only valid once the session is
// complete; a completed session settles exactly once.
func (c *Collector) Consume(roomID string) ([]byte, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.pending[roomID]
	if !ok {
		return nil, nil, myErrors.ErrNoPendingSession
	}
	if len(session.signatures) != session.required {
		return nil, nil, myErrors.ErrNotComplete
	}

	ordered := make([]string, 0, session.required)
	for _, p := range session.participants {
		ordered = append(ordered, session.signatures[p])
	}

	delete(c.pending, roomID)
	return session.payload, ordered, nil
}

// Peek returns the pending canonical payload so the identical bytes can be
// re-delivered to a participant who has not signed yet.
func (c *Collector) Peek(roomID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.pending[roomID]
	if !ok {
		return nil, false
	}
	return session.payload, true
}

// Participants returns the pending session's signer list in order.
func (c *Collector) Participants(roomID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.pending[roomID]
	if !ok {
		return nil, false
	}
	out := make([]string, len(session.participants))
	copy(out, session.participants)
	return out, true
}

// Invalidate drops a pending session, used when a participant disconnects
// mid-negotiation and the collection can never complete.
func (c *Collector) Invalidate(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[roomID]; ok {
		slog.Info("invalidating pending session", "roomId", roomID)
		delete(c.pending, roomID)
	}
}

func (s *pendingSession) has(eoa string) bool {
	for _, p := range s.participants {
		if p == eoa {
			return true
		}
	}
	return false
}
