package models

import "time"

// Event types
const (
	EventTypeOrderFinalized = "ORDER_FINALIZED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderFinalizedEvent is published after the stock decrement and order
// write have committed. Publishing is best-effort and never fails the
// finalization.
type OrderFinalizedEvent struct {
	BaseEvent
	OrderID        string      `json:"order_id"`
	BuyOrder       string      `json:"buy_order"`
	UserID         string      `json:"user_id"`
	TotalAmount    float64     `json:"total_amount"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Items          []OrderItem `json:"items"`
}
