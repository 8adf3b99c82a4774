package service

import (
	"context"
	"errors"
	"testing"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = models.Actor{ID: "user-1", Name: "Asha", Email: "asha@example.com", Phone: "9990001111", Roles: []string{"student"}}
	staff    = models.Actor{ID: "staff-1", Name: "Ravi", Roles: []string{"staff"}}
)

type orderTestEnv struct {
	store     *fakeStore
	cache     *fakeCache
	publisher *fakePublisher
	notifier  *fakeNotifier
	carts     *CartService
	orders    *OrderService
}

func newOrderTestEnv(t *testing.T) *orderTestEnv {
	t.Helper()
	st := newFakeStore()
	cache := newFakeCache()
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	catalog := newFakeCatalog(
		models.MenuItem{ID: "item-1", Name: "Masala Dosa", Price: 60},
		models.MenuItem{ID: "item-2", Name: "Filter Coffee", Price: 25.50},
	)
	tokens := NewTokenAllocator(st, "ABCDE")
	return &orderTestEnv{
		store:     st,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		carts:     NewCartService(st, cache, catalog, 5.0, 50),
		orders:    NewOrderService(st, cache, tokens, publisher, notifier, "ORD"),
	}
}

func (e *orderTestEnv) fillCart(t *testing.T, userID string) {
	t.Helper()
	_, err := e.carts.AddItem(context.Background(), userID, AddItemRequest{MenuItemID: "item-1", Quantity: 2})
	require.NoError(t, err)
	_, err = e.carts.AddItem(context.Background(), userID, AddItemRequest{MenuItemID: "item-2", Quantity: 1})
	require.NoError(t, err)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	env := newOrderTestEnv(t)

	_, err := env.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{PaymentMethod: "UPI"})
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)
}

func TestCreateOrderHappyPath(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	env.fillCart(t, customer.ID)

	view, err := env.orders.CreateOrder(ctx, customer, CreateOrderRequest{PaymentMethod: "UPI"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, view.Status)
	assert.Equal(t, "ORD", view.OrderNumber[:3])
	assert.Equal(t, 145.5, view.Subtotal) // 2*60 + 25.50
	assert.Equal(t, 7.28, view.Tax)
	assert.Equal(t, 152.78, view.Total)
	assert.Len(t, view.Items, 2)

	// Identity snapshot from the caller's token claims.
	require.NotNil(t, view.UserName)
	assert.Equal(t, "Asha", *view.UserName)

	// 3 items -> 10 + 3*2 minutes.
	assert.Equal(t, 16, view.EstimatedPreparationTime)
	require.NotNil(t, view.EstimatedReadyTime)

	// One token, one pending payment, one timeline entry.
	require.NotNil(t, view.Token)
	assert.Regexp(t, `^[A-E]\d{3}$`, view.Token.Token)
	require.NotNil(t, view.Payment)
	assert.Equal(t, models.PaymentStatusPending, view.Payment.Status)
	assert.Equal(t, view.Total, view.Payment.Amount)
	require.Len(t, view.Timeline, 1)
	assert.Equal(t, "Order created", view.Timeline[0].Message)

	// Cart is zeroed, not deleted.
	cart, err := env.carts.GetCart(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)

	// Event published and queue notified.
	require.Len(t, env.publisher.created, 1)
	assert.Equal(t, view.ID, env.publisher.created[0].OrderID)
	require.Len(t, env.notifier.notifications, 1)
	assert.Equal(t, 3, env.notifier.notifications[0].ItemCount)
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	env.fillCart(t, customer.ID)

	req := CreateOrderRequest{PaymentMethod: "UPI", IdempotencyKey: "key-1"}
	first, err := env.orders.CreateOrder(ctx, customer, req)
	require.NoError(t, err)

	// The cart is now empty; a retry with the same key must return the
	// original order instead of failing on the empty cart.
	second, err := env.orders.CreateOrder(ctx, customer, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, env.publisher.created, 1, "no second event on replay")
}

func TestCreateOrderCompensatesOnPartialFailure(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	env.fillCart(t, customer.ID)

	env.store.createPaymentErr = errors.New("payments table unavailable")

	_, err := env.orders.CreateOrder(ctx, customer, CreateOrderRequest{PaymentMethod: "UPI"})
	require.Error(t, err)

	assert.Len(t, env.store.cascadeDeleted, 1, "partial records must be deleted")
	assert.Empty(t, env.store.orders)
	assert.Empty(t, env.publisher.created)

	// The cart survives a failed creation.
	cart, err := env.carts.GetCart(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCreateOrderNotifyFailureIsSwallowed(t *testing.T) {
	env := newOrderTestEnv(t)
	env.fillCart(t, customer.ID)
	env.notifier.err = errors.New("queue service down")

	view, err := env.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{PaymentMethod: "CASH"})
	require.NoError(t, err, "queue outage must not block order creation")
	assert.Equal(t, models.OrderStatusPending, view.Status)
}

func createTestOrder(t *testing.T, env *orderTestEnv) *models.OrderView {
	t.Helper()
	env.fillCart(t, customer.ID)
	view, err := env.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{PaymentMethod: "UPI"})
	require.NoError(t, err)
	return view
}

func TestGetOrderOwnership(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	// Owner sees it.
	got, err := env.orders.GetOrder(ctx, order.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	// Another user gets not-found, not forbidden.
	_, err = env.orders.GetOrder(ctx, order.ID, "someone-else")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Empty owner is the staff path.
	_, err = env.orders.GetOrder(ctx, order.ID, "")
	assert.NoError(t, err)
}

func TestUpdateStatusFullLifecycle(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	for _, status := range []string{
		models.OrderStatusConfirmed,
		models.OrderStatusPreparing,
		models.OrderStatusReady,
		models.OrderStatusCompleted,
	} {
		view, err := env.orders.UpdateStatus(ctx, order.ID, staff, UpdateStatusRequest{Status: status})
		require.NoError(t, err, "transition to %s", status)
		assert.Equal(t, status, view.Status)
	}

	final, err := env.orders.GetOrder(ctx, order.ID, "")
	require.NoError(t, err)
	assert.NotNil(t, final.ActualReadyTime)
	assert.NotNil(t, final.ActualPreparationTime)
	assert.NotNil(t, final.CompletedAt)
	// Creation entry plus four transitions.
	assert.Len(t, final.Timeline, 5)
	assert.Len(t, env.publisher.changed, 4)
}

func TestUpdateStatusRejectsSkippedState(t *testing.T) {
	env := newOrderTestEnv(t)
	order := createTestOrder(t, env)

	_, err := env.orders.UpdateStatus(context.Background(), order.ID, staff,
		UpdateStatusRequest{Status: models.OrderStatusReady})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestUpdateStatusForbiddenForNonStaff(t *testing.T) {
	env := newOrderTestEnv(t)
	order := createTestOrder(t, env)

	_, err := env.orders.UpdateStatus(context.Background(), order.ID, customer,
		UpdateStatusRequest{Status: models.OrderStatusConfirmed})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdateStatusCancelScopedToOwner(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	// A different non-staff user cannot cancel someone else's order;
	// the order is not even visible to them.
	stranger := models.Actor{ID: "user-999", Name: "Mallory", Roles: []string{"student"}}
	_, err := env.orders.UpdateStatus(ctx, order.ID, stranger,
		UpdateStatusRequest{Status: models.OrderStatusCancelled})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := env.orders.GetOrder(ctx, order.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)

	// The owner may still cancel through the status operation.
	view, err := env.orders.UpdateStatus(ctx, order.ID, customer,
		UpdateStatusRequest{Status: models.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, view.Status)
}

func TestUpdateStatusPreparingSetsEstimate(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	_, err := env.orders.UpdateStatus(ctx, order.ID, staff, UpdateStatusRequest{Status: models.OrderStatusConfirmed})
	require.NoError(t, err)

	prep := 25
	view, err := env.orders.UpdateStatus(ctx, order.ID, staff,
		UpdateStatusRequest{Status: models.OrderStatusPreparing, EstimatedPreparationTime: &prep})
	require.NoError(t, err)
	assert.Equal(t, 25, view.EstimatedPreparationTime)
	require.NotNil(t, view.EstimatedReadyTime)
}

func TestCancelOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	view, err := env.orders.Cancel(ctx, order.ID, customer, CancelOrderRequest{CancellationReason: "changed my mind"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, view.Status)
	require.NotNil(t, view.CancellationReason)
	assert.Equal(t, "changed my mind", *view.CancellationReason)
	require.NotNil(t, view.Payment)
	assert.Equal(t, models.PaymentStatusCancelled, view.Payment.Status)
	require.Len(t, env.publisher.cancelled, 1)
}

func TestCancelCompletedOrderRejected(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	for _, status := range []string{
		models.OrderStatusConfirmed, models.OrderStatusPreparing,
		models.OrderStatusReady, models.OrderStatusCompleted,
	} {
		_, err := env.orders.UpdateStatus(ctx, order.ID, staff, UpdateStatusRequest{Status: status})
		require.NoError(t, err)
	}

	_, err := env.orders.Cancel(ctx, order.ID, customer, CancelOrderRequest{CancellationReason: "too late"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestFeedbackOnlyOnCompletedOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	_, err := env.orders.SubmitFeedback(ctx, order.ID, customer, FeedbackRequest{Rating: 5})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestFeedbackOverwrite(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()
	order := createTestOrder(t, env)

	for _, status := range []string{
		models.OrderStatusConfirmed, models.OrderStatusPreparing,
		models.OrderStatusReady, models.OrderStatusCompleted,
	} {
		_, err := env.orders.UpdateStatus(ctx, order.ID, staff, UpdateStatusRequest{Status: status})
		require.NoError(t, err)
	}

	view, err := env.orders.SubmitFeedback(ctx, order.ID, customer, FeedbackRequest{Rating: 3})
	require.NoError(t, err)
	require.NotNil(t, view.Rating)
	assert.Equal(t, 3, *view.Rating)

	comment := "actually great"
	view, err = env.orders.SubmitFeedback(ctx, order.ID, customer, FeedbackRequest{
		Rating:   5,
		Feedback: &comment,
		ItemFeedback: []ItemFeedbackRequest{
			{OrderItemID: view.Items[0].ID, Rating: 5},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, view.Rating)
	assert.Equal(t, 5, *view.Rating)
	assert.Len(t, env.store.itemFeedback[order.ID], 1)
}

func TestListMyOrdersPagination(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.fillCart(t, customer.ID)
		_, err := env.orders.CreateOrder(ctx, customer, CreateOrderRequest{PaymentMethod: "CASH"})
		require.NoError(t, err)
	}

	orders, total, err := env.orders.ListMyOrders(ctx, customer.ID, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, orders, 2)

	orders, _, err = env.orders.ListMyOrders(ctx, customer.ID, "", 3, 2)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// Status filter.
	orders, total, err = env.orders.ListMyOrders(ctx, customer.ID, models.OrderStatusCompleted, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestListActiveOrdersExcludesTerminal(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()

	first := createTestOrder(t, env)
	env.fillCart(t, customer.ID)
	_, err := env.orders.CreateOrder(ctx, customer, CreateOrderRequest{PaymentMethod: "CASH"})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, first.ID, customer, CancelOrderRequest{CancellationReason: "nope"})
	require.NoError(t, err)

	active, err := env.orders.ListActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, first.ID, active[0].ID)
	assert.NotNil(t, active[0].Token)
}

func TestTodayStatistics(t *testing.T) {
	env := newOrderTestEnv(t)
	ctx := context.Background()

	first := createTestOrder(t, env)
	second := createTestOrder(t, env)

	_, err := env.orders.Cancel(ctx, second.ID, customer, CancelOrderRequest{CancellationReason: "test"})
	require.NoError(t, err)

	stats, err := env.orders.TodayStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.PendingOrders)
	assert.Equal(t, 1, stats.CancelledOrders)
	// Cancelled orders are excluded from revenue.
	assert.Equal(t, first.Total, stats.TotalRevenue)
	assert.Equal(t, first.Tax, stats.TotalTax)
}

func TestGetOrderStatusPublicShape(t *testing.T) {
	env := newOrderTestEnv(t)
	order := createTestOrder(t, env)

	status, err := env.orders.GetOrderStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, status.OrderID)
	assert.Equal(t, models.OrderStatusPending, status.Status)
	require.NotNil(t, status.Token)
	assert.Equal(t, order.Token.Token, *status.Token)

	_, err = env.orders.GetOrderStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
