package kafka

import "time"

// PurchaseEvent is the audit record written for every settled purchase.
type PurchaseEvent struct {
	Buyer      string              `json:"buyer"`       // wallet address
	RoomID     string              `json:"room_id"`     // room the session ran in
	SessionID  string              `json:"session_id"`  // settlement session id
	Items      []PurchaseEventItem `json:"items"`       // items transferred
	TotalPrice string              `json:"total_price"` // decimal string
	SettledAt  time.Time           `json:"settled_at"`
}

type PurchaseEventItem struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	Price string `json:"price"` // decimal string, price actually charged
}
