package settlement

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodCreateSession = "create_app_session"
	MethodCloseSession  = "close_app_session"
)

// Request is one outbound envelope on the settlement connection. ID is the
// caller-generated correlation identifier; the peer echoes it back on the
// matching response.
type Request struct {
	ID         string          `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Signatures []string        `json:"signatures,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *PeerError      `json:"error,omitempty"`
}

// PeerError is the peer's machine-readable rejection envelope.
type PeerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AppDefinition fixes who participates in a settlement session and how the
// session may be finalized.
type AppDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int    `json:"weights"`
	Quorum       int      `json:"quorum"`
	Challenge    int      `json:"challenge"`
	Nonce        int64    `json:"nonce"`
}

type Allocation struct {
	Participant string          `json:"participant"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// SessionParams is the canonical create-session request body. It is built
// exactly once per negotiation and every signer signs these exact bytes.
type SessionParams struct {
	Definition  AppDefinition `json:"definition"`
	Allocations []Allocation  `json:"allocations"`
}

type CloseParams struct {
	AppSessionID string       `json:"app_session_id"`
	Allocations  []Allocation `json:"allocations"`
}

type CloseReceipt struct {
	AppSessionID string `json:"app_session_id"`
	Status       string `json:"status"`
}

type createResult struct {
	AppSessionID string `json:"app_session_id"`
}

// NewSessionPayload builds the canonical open-session request for the given
// human participants. The engine address is appended as the counter-party
// holding the finalization quorum; each human seat deposits the wager.
func NewSessionPayload(participants []string, engine, protocol, asset string, wager decimal.Decimal, challenge int) ([]byte, error) {
	all := make([]string, 0, len(participants)+1)
	all = append(all, participants...)
	all = append(all, engine)

	weights := make([]int, len(all))
	weights[len(weights)-1] = 100

	allocations := make([]Allocation, 0, len(all))
	for _, p := range participants {
		allocations = append(allocations, Allocation{Participant: p, Asset: asset, Amount: wager})
	}
	allocations = append(allocations, Allocation{Participant: engine, Asset: asset, Amount: decimal.Zero})

	params := SessionParams{
		Definition: AppDefinition{
			Protocol:     protocol,
			Participants: all,
			Weights:      weights,
			Quorum:       100,
			Challenge:    challenge,
			Nonce:        time.Now().UnixMilli(),
		},
		Allocations: allocations,
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal session params: %w", err)
	}
	return payload, nil
}

// PurchasePayload builds the canonical bytes a buyer signs to authorize a
// purchase. The engine rebuilds them from the request and verifies the
// submitted signature against the same bytes.
func PurchasePayload(buyer string, itemIDs []int, total decimal.Decimal) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Buyer      string          `json:"buyer"`
		ItemIDs    []int           `json:"itemIds"`
		TotalPrice decimal.Decimal `json:"totalPrice"`
	}{Buyer: buyer, ItemIDs: itemIDs, TotalPrice: total})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal purchase payload: %w", err)
	}
	return payload, nil
}
