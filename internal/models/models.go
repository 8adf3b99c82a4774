package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSuccess   = "SUCCESS"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusRefunded  = "REFUNDED"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// TerminalOrderStatus reports whether s admits no further transitions.
func TerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Cart is the per-user pre-order aggregate. One cart per user; it is
// zeroed rather than deleted when an order is placed.
type Cart struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Subtotal      float64   `db:"subtotal" json:"subtotal"`
	Tax           float64   `db:"tax" json:"tax"`
	TaxPercentage float64   `db:"tax_percentage" json:"tax_percentage"`
	Total         float64   `db:"total" json:"total"`
	ItemCount     int       `db:"item_count" json:"item_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a single line in a cart, keyed by (cart_id, menu_item_id).
type CartItem struct {
	ID                  string         `db:"id" json:"id"`
	CartID              string         `db:"cart_id" json:"cart_id"`
	MenuItemID          string         `db:"menu_item_id" json:"menu_item_id"`
	MenuItemName        string         `db:"menu_item_name" json:"menu_item_name"`
	MenuItemImage       *string        `db:"menu_item_image" json:"menu_item_image,omitempty"`
	Quantity            int            `db:"quantity" json:"quantity"`
	UnitPrice           float64        `db:"unit_price" json:"unit_price"`
	TotalPrice          float64        `db:"total_price" json:"total_price"`
	SpecialInstructions *string        `db:"special_instructions" json:"special_instructions,omitempty"`
	Customizations      Customizations `db:"customizations" json:"customizations"`
	AddedAt             time.Time      `db:"added_at" json:"added_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// Customization is one selected option on a cart or order line.
type Customization struct {
	CustomizationID   string  `json:"customization_id"`
	CustomizationName string  `json:"customization_name"`
	SelectedLabel     string  `json:"selected_label"`
	SelectedValue     string  `json:"selected_value"`
	PriceModifier     float64 `json:"price_modifier"`
}

// Customizations is stored as a JSONB column.
type Customizations []Customization

func (c Customizations) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Customizations) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("customizations: unsupported scan type %T", src)
	}
	return json.Unmarshal(b, c)
}

// Order is an immutable financial snapshot of a cart at creation time.
// Only status-related and feedback fields mutate afterwards.
type Order struct {
	ID                       string     `db:"id" json:"id"`
	OrderNumber              string     `db:"order_number" json:"order_number"`
	UserID                   string     `db:"user_id" json:"user_id"`
	UserName                 *string    `db:"user_name" json:"user_name,omitempty"`
	UserEmail                *string    `db:"user_email" json:"user_email,omitempty"`
	UserPhone                *string    `db:"user_phone" json:"user_phone,omitempty"`
	Status                   string     `db:"status" json:"status"`
	Subtotal                 float64    `db:"subtotal" json:"subtotal"`
	Tax                      float64    `db:"tax" json:"tax"`
	Total                    float64    `db:"total" json:"total"`
	SpecialInstructions      *string    `db:"special_instructions" json:"special_instructions,omitempty"`
	EstimatedPreparationTime int        `db:"estimated_preparation_time" json:"estimated_preparation_time"`
	ActualPreparationTime    *int       `db:"actual_preparation_time" json:"actual_preparation_time,omitempty"`
	EstimatedReadyTime       *time.Time `db:"estimated_ready_time" json:"estimated_ready_time,omitempty"`
	ActualReadyTime          *time.Time `db:"actual_ready_time" json:"actual_ready_time,omitempty"`
	CompletedAt              *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt              *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason       *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy              *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	Rating                   *int       `db:"rating" json:"rating,omitempty"`
	Feedback                 *string    `db:"feedback" json:"feedback,omitempty"`
	FeedbackSubmittedAt      *time.Time `db:"feedback_submitted_at" json:"feedback_submitted_at,omitempty"`
	IdempotencyKey           *string    `db:"idempotency_key" json:"-"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderItem is a frozen copy of a cart line taken at order time.
type OrderItem struct {
	ID                  string         `db:"id" json:"id"`
	OrderID             string         `db:"order_id" json:"order_id"`
	MenuItemID          string         `db:"menu_item_id" json:"menu_item_id"`
	MenuItemName        string         `db:"menu_item_name" json:"menu_item_name"`
	MenuItemImage       *string        `db:"menu_item_image" json:"menu_item_image,omitempty"`
	Quantity            int            `db:"quantity" json:"quantity"`
	UnitPrice           float64        `db:"unit_price" json:"unit_price"`
	TotalPrice          float64        `db:"total_price" json:"total_price"`
	SpecialInstructions *string        `db:"special_instructions" json:"special_instructions,omitempty"`
	Customizations      Customizations `db:"customizations" json:"customizations"`
}

// OrderToken is the human-readable pickup code, one per order,
// sequence unique within a calendar day.
type OrderToken struct {
	ID          string    `db:"id" json:"id"`
	OrderID     string    `db:"order_id" json:"order_id"`
	Token       string    `db:"token" json:"token"`
	TokenNumber int       `db:"token_number" json:"token_number"`
	TokenPrefix string    `db:"token_prefix" json:"token_prefix"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

// Payment is the single payment record attached to an order. Its status
// evolves independently of the order status.
type Payment struct {
	ID              string     `db:"id" json:"id"`
	OrderID         string     `db:"order_id" json:"order_id"`
	Method          string     `db:"method" json:"method"`
	Status          string     `db:"status" json:"status"`
	Amount          float64    `db:"amount" json:"amount"`
	UPIID           *string    `db:"upi_id" json:"upi_id,omitempty"`
	CardLast4Digits *string    `db:"card_last_4_digits" json:"card_last_4_digits,omitempty"`
	CardType        *string    `db:"card_type" json:"card_type,omitempty"`
	InitiatedAt     time.Time  `db:"initiated_at" json:"initiated_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
}

// TimelineEntry is one row of the append-only status audit trail.
type TimelineEntry struct {
	ID            string    `db:"id" json:"id"`
	OrderID       string    `db:"order_id" json:"order_id"`
	Status        string    `db:"status" json:"status"`
	Message       string    `db:"message" json:"message"`
	UpdatedBy     *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedByName *string   `db:"updated_by_name" json:"updated_by_name,omitempty"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
}

// OrderItemFeedback is a per-line rating on a completed order.
type OrderItemFeedback struct {
	ID          string    `db:"id" json:"id"`
	OrderID     string    `db:"order_id" json:"order_id"`
	OrderItemID string    `db:"order_item_id" json:"order_item_id"`
	Rating      int       `db:"rating" json:"rating"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DailyStatistics is the per-day rollup row, written by a separate
// aggregation path; this service only reads it.
type DailyStatistics struct {
	Date               string  `db:"date" json:"date"`
	TotalOrders        int     `db:"total_orders" json:"total_orders"`
	CompletedOrders    int     `db:"completed_orders" json:"completed_orders"`
	CancelledOrders    int     `db:"cancelled_orders" json:"cancelled_orders"`
	TotalRevenue       float64 `db:"total_revenue" json:"total_revenue"`
	TotalTax           float64 `db:"total_tax" json:"total_tax"`
	AvgOrderValue      float64 `db:"avg_order_value" json:"avg_order_value"`
	AvgPreparationTime int     `db:"avg_preparation_time" json:"avg_preparation_time"`
}

// MenuItem is the catalog collaborator's view of an item.
type MenuItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image *string `json:"image,omitempty"`
}

// Actor identifies the caller of a role-gated operation.
type Actor struct {
	ID    string
	Name  string
	Email string
	Phone string
	Roles []string
}

// IsStaff reports whether the actor may drive forward status transitions.
func (a Actor) IsStaff() bool {
	for _, r := range a.Roles {
		if r == "staff" || r == "admin" {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// CartView is a cart hydrated with its lines.
type CartView struct {
	Cart
	Items []CartItem `json:"items"`
}

// OrderView is an order hydrated with lines, token, payment and timeline.
type OrderView struct {
	Order
	Items    []OrderItem     `json:"items"`
	Token    *OrderToken     `json:"token,omitempty"`
	Payment  *Payment        `json:"payment,omitempty"`
	Timeline []TimelineEntry `json:"timeline"`
}

// OrderSummary is the compact listing shape used by staff views.
type OrderSummary struct {
	ID                 string     `json:"id"`
	OrderNumber        string     `json:"order_number"`
	Status             string     `json:"status"`
	Total              float64    `json:"total"`
	ItemCount          int        `json:"item_count"`
	EstimatedReadyTime *time.Time `json:"estimated_ready_time,omitempty"`
	Token              *string    `json:"token,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// TodayStatistics is the on-demand rollup for the current day.
type TodayStatistics struct {
	Date               string  `json:"date"`
	TotalOrders        int     `json:"total_orders"`
	PendingOrders      int     `json:"pending_orders"`
	ConfirmedOrders    int     `json:"confirmed_orders"`
	PreparingOrders    int     `json:"preparing_orders"`
	ReadyOrders        int     `json:"ready_orders"`
	CompletedOrders    int     `json:"completed_orders"`
	CancelledOrders    int     `json:"cancelled_orders"`
	RefundedOrders     int     `json:"refunded_orders"`
	TotalRevenue       float64 `json:"total_revenue"`
	TotalTax           float64 `json:"total_tax"`
	AvgOrderValue      float64 `json:"avg_order_value"`
	AvgPreparationTime int     `json:"avg_preparation_time"`
}

// Page is the shared pagination envelope: 1-indexed page, page_size
// bounded [1,100].
type Page struct {
	Items      interface{} `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
	HasNext    bool        `json:"has_next"`
	HasPrev    bool        `json:"has_prev"`
}

// NewPage builds the envelope from a total count.
func NewPage(items interface{}, total, page, pageSize int) Page {
	totalPages := (total + pageSize - 1) / pageSize
	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
