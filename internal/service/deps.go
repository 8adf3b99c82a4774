package service

import (
	"context"
	"time"

	"canteen-order-service/internal/models"
	"canteen-order-service/internal/store"
)

// CartStore is the slice of the durable store the cart aggregate needs.
// Implemented by *store.Store; tests substitute in-memory fakes.
type CartStore interface {
	GetCartByUserID(ctx context.Context, userID string) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	UpdateCartTotals(ctx context.Context, cartID string, subtotal, tax, total float64, itemCount int) error
	GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error)
	GetCartItemByMenuItem(ctx context.Context, cartID, menuItemID string) (*models.CartItem, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID string) (int64, error)
	DeleteCartItems(ctx context.Context, cartID string) error
}

// OrderStore is the slice of the durable store the order aggregate needs.
// It includes CartStore because order creation snapshots and zeroes the cart.
type OrderStore interface {
	CartStore

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderForUser(ctx context.Context, id, userID string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, upd store.StatusUpdate) error
	CancelOrder(ctx context.Context, orderID, reason, cancelledBy string) error
	SetOrderFeedback(ctx context.Context, orderID string, rating int, feedback *string) error
	ReplaceOrderItemFeedback(ctx context.Context, orderID string, entries []models.OrderItemFeedback) error

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	CountOrderItems(ctx context.Context, orderID string) (int, error)

	CreateOrderToken(ctx context.Context, token *models.OrderToken) error
	GetOrderTokenByOrderID(ctx context.Context, orderID string) (*models.OrderToken, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, orderID, status string) error

	AppendTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error
	GetTimeline(ctx context.Context, orderID string) ([]models.TimelineEntry, error)

	ListOrders(ctx context.Context, filter store.OrderFilter, limit, offset int) ([]models.Order, error)
	CountOrders(ctx context.Context, filter store.OrderFilter) (int, error)
	ListActiveOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	ListPayments(ctx context.Context, status, method string, limit, offset int) ([]models.Payment, int, error)
	ListDailyStatistics(ctx context.Context, startDate, endDate string) ([]models.DailyStatistics, error)

	DeleteOrderCascade(ctx context.Context, orderID string) error
}

// TokenStore allocates per-day token sequence numbers atomically.
type TokenStore interface {
	NextTokenNumber(ctx context.Context, day time.Time) (int, error)
}

// Cache is the cache-aside coordinator. All methods are best-effort;
// implementations must never surface Redis failures to the caller.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{})
	Delete(ctx context.Context, keys ...string)
	DeletePattern(ctx context.Context, pattern string)
}

// Catalog resolves menu items from the external catalog service.
type Catalog interface {
	GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error)
}

// Publisher emits order lifecycle events to the broker.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// Notifier informs the queue/ticketing collaborator. Callers treat every
// error as best-effort: logged, counted, never propagated.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, n models.QueueNotification) error
	NotifyStatusChanged(ctx context.Context, u models.QueueStatusUpdate) error
}
