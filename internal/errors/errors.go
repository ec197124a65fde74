package myErrors

import "errors"

// room registry
var (
	ErrAlreadyInRoom = errors.New("participant already in another room")
	ErrRoomNotFound  = errors.New("room not found")
	ErrWagerMismatch = errors.New("wager amount mismatch")
	ErrRoomFull      = errors.New("room is full")
	ErrNotInRoom     = errors.New("participant not in any room")
)

// signature collector
var (
	ErrAlreadyPending     = errors.New("session negotiation already pending")
	ErrNoPendingSession   = errors.New("no pending session for room")
	ErrUnknownParticipant = errors.New("participant not part of pending session")
	ErrAlreadySigned      = errors.New("participant already signed")
	ErrNotComplete        = errors.New("pending session is not complete")
)

// request validation
var (
	ErrInvalidWagerAmount = errors.New("invalid wager amount")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrPriceMismatch      = errors.New("total price does not match current quotes")
	ErrNoActiveSession    = errors.New("no active settlement session")
)

// settlement peer
var (
	ErrNotConnected       = errors.New("settlement connection not ready")
	ErrSettlementTimeout  = errors.New("settlement call timed out")
	ErrSettlementRejected = errors.New("settlement peer rejected request")
)
