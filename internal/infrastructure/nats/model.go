package natsjs

import "time"

// RoomEvent announces room lifecycle changes on the event feed so other
// services (matchmaking lists, dashboards) can follow along.
type RoomEvent struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"` // created | joined | ready | vacated | closed
	RoomID      string    `json:"room_id"`
	Host        string    `json:"host,omitempty"`
	Guest       string    `json:"guest,omitempty"`
	WagerAmount string    `json:"wager_amount"` // decimal string
	At          time.Time `json:"at"`
}

// SettlementEvent announces settlement session progress for a room.
type SettlementEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"` // opened | closed | failed
	RoomID    string    `json:"room_id"`
	SessionID string    `json:"session_id,omitempty"`
	Total     string    `json:"total,omitempty"` // decimal string
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
