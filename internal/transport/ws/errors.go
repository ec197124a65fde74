package ws

import (
	"errors"

	myErrors "github.com/KStasi/pixel-map/internal/errors"
)

const codeInternal = "INTERNAL_ERROR"

var errorCodes = []struct {
	err  error
	code string
}{
	{myErrors.ErrInvalidWagerAmount, "INVALID_WAGER_AMOUNT"},
	{myErrors.ErrWagerMismatch, "WAGER_MISMATCH"},
	{myErrors.ErrRoomFull, "ROOM_FULL"},
	{myErrors.ErrRoomNotFound, "ROOM_NOT_FOUND"},
	{myErrors.ErrAlreadyInRoom, "ALREADY_IN_ROOM"},
	{myErrors.ErrNotInRoom, "NOT_IN_ROOM"},
	{myErrors.ErrAlreadyPending, "ALREADY_PENDING"},
	{myErrors.ErrNoPendingSession, "NO_PENDING_SESSION"},
	{myErrors.ErrUnknownParticipant, "UNKNOWN_PARTICIPANT"},
	{myErrors.ErrAlreadySigned, "ALREADY_SIGNED"},
	{myErrors.ErrInvalidSignature, "INVALID_SIGNATURE"},
	{myErrors.ErrPriceMismatch, "PRICE_MISMATCH"},
	{myErrors.ErrNoActiveSession, "NO_ACTIVE_SESSION"},
	{myErrors.ErrNotConnected, "NOT_CONNECTED"},
	{myErrors.ErrSettlementTimeout, "SETTLEMENT_TIMEOUT"},
	{myErrors.ErrSettlementRejected, "SETTLEMENT_FAILED"},
}

// codeFor maps a service error onto the wire error code. Anything without a
// sentinel is internal by definition.
func codeFor(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return codeInternal
}
