package protocol

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/domain"
)

// Envelope is the outer frame of every inbound client message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// inbound message types
const (
	TypeJoinRoom           = "joinRoom"
	TypeListAvailableRooms = "listAvailableRooms"
	TypeSubmitSignature    = "submitSignature"
	TypePurchaseItems      = "purchaseItems"
	TypeRequestItemsState  = "requestItemsState"
)

// outbound message types
const (
	TypeRoomCreated        = "roomCreated"
	TypeRoomState          = "roomState"
	TypeRoomReady          = "roomReady"
	TypeAvailableRooms     = "availableRooms"
	TypeSignatureRequest   = "signatureRequest"
	TypeSignatureConfirmed = "signatureConfirmed"
	TypeItemsState         = "itemsState"
	TypeOnlineUsers        = "onlineUsers"
	TypeError              = "error"
)

type JoinRoomPayload struct {
	RoomID        string          `json:"roomId,omitempty"`
	ParticipantID string          `json:"participantId"`
	WagerAmount   decimal.Decimal `json:"wagerAmount"`
}

type SubmitSignaturePayload struct {
	RoomID    string `json:"roomId"`
	Signature string `json:"signature"`
}

type PurchaseItemsPayload struct {
	ParticipantID string                `json:"participantId"`
	Items         []domain.PurchaseItem `json:"items"`
	TotalPrice    decimal.Decimal       `json:"totalPrice"`
	Signature     string                `json:"signature"`
}

type RoomCreated struct {
	Type   string      `json:"type"`
	RoomID string      `json:"roomId"`
	Role   domain.Role `json:"role"`
}

func NewRoomCreated(roomID string, role domain.Role) RoomCreated {
	return RoomCreated{Type: TypeRoomCreated, RoomID: roomID, Role: role}
}

type RoomState struct {
	Type string `json:"type"`
	Room any    `json:"room"`
}

func NewRoomState(snapshot any) RoomState {
	return RoomState{Type: TypeRoomState, Room: snapshot}
}

type RoomReady struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

func NewRoomReady(roomID string) RoomReady {
	return RoomReady{Type: TypeRoomReady, RoomID: roomID}
}

type AvailableRooms struct {
	Type  string                 `json:"type"`
	Rooms []domain.AvailableRoom `json:"rooms"`
}

func NewAvailableRooms(rooms []domain.AvailableRoom) AvailableRooms {
	return AvailableRooms{Type: TypeAvailableRooms, Rooms: rooms}
}

// SignatureRequest carries the canonical request a participant must sign.
// RequestToSign is passed through as raw bytes: every signer must see the
// identical payload, so it is never re-marshaled.
type SignatureRequest struct {
	Type          string          `json:"type"`
	RoomID        string          `json:"roomId"`
	RequestToSign json.RawMessage `json:"requestToSign"`
	Participants  []string        `json:"participants"`
}

func NewSignatureRequest(roomID string, payload []byte, participants []string) SignatureRequest {
	return SignatureRequest{
		Type:          TypeSignatureRequest,
		RoomID:        roomID,
		RequestToSign: payload,
		Participants:  participants,
	}
}

type SignatureConfirmed struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

func NewSignatureConfirmed(roomID string) SignatureConfirmed {
	return SignatureConfirmed{Type: TypeSignatureConfirmed, RoomID: roomID}
}

// ItemState is one item with its live quote.
type ItemState struct {
	ID         int             `json:"id"`
	Color      string          `json:"color"`
	Owner      string          `json:"owner,omitempty"`
	Price      decimal.Decimal `json:"price"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
	LastBought *time.Time      `json:"lastBought,omitempty"`
}

type ItemsState struct {
	Type  string      `json:"type"`
	Items []ItemState `json:"items"`
}

func NewItemsState(items []ItemState) ItemsState {
	return ItemsState{Type: TypeItemsState, Items: items}
}

type OnlineUsers struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func NewOnlineUsers(count int) OnlineUsers {
	return OnlineUsers{Type: TypeOnlineUsers, Count: count}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: code, Message: message}
}
