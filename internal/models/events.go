package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created from a cart
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string  `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	UserID      string  `json:"user_id"`
	UserName    string  `json:"user_name,omitempty"`
	UserPhone   string  `json:"user_phone,omitempty"`
	Token       string  `json:"token"`
	Total       float64 `json:"total"`
	ItemCount   int     `json:"item_count"`
}

// OrderStatusChangedEvent published on every status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Token       string `json:"token,omitempty"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Reason      string `json:"reason"`
}

// QueueNotification is the payload sent to the queue/ticketing service.
type QueueNotification struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserPhone string `json:"user_phone"`
	ItemCount int    `json:"item_count"`
	Priority  string `json:"priority"`
}

// QueueStatusUpdate tells the queue service an order changed status.
type QueueStatusUpdate struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Token       string `json:"token"`
	Status      string `json:"status"`
}
