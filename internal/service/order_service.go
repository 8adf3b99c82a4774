package service

import (
	"context"
	"fmt"
	"time"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/cache"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/store"
	"canteen-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// forwardTransitions maps each status to the set of statuses reachable
// from it. CANCELLED and REFUNDED are side-exits from every non-terminal
// state; terminal states admit nothing.
var forwardTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusConfirmed: {models.OrderStatusPreparing, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusPreparing: {models.OrderStatusReady, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusReady:     {models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusRefunded},
}

func transitionAllowed(from, to string) bool {
	for _, s := range forwardTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderService owns the order, its line items, payment stub and status
// timeline, and orchestrates cart-to-order conversion.
type OrderService struct {
	store       OrderStore
	cache       Cache
	tokens      *TokenAllocator
	publisher   Publisher
	notifier    Notifier
	orderPrefix string
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	cache Cache,
	tokens *TokenAllocator,
	publisher Publisher,
	notifier Notifier,
	orderPrefix string,
) *OrderService {
	return &OrderService{
		store:       store,
		cache:       cache,
		tokens:      tokens,
		publisher:   publisher,
		notifier:    notifier,
		orderPrefix: orderPrefix,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest converts the caller's cart into an order.
type CreateOrderRequest struct {
	PaymentMethod       string  `json:"payment_method" binding:"required"`
	SpecialInstructions *string `json:"special_instructions"`
	UPIID               *string `json:"upi_id"`
	CardLast4Digits     *string `json:"card_last_4_digits"`
	CardType            *string `json:"card_type"`
	IdempotencyKey      string  `json:"idempotency_key,omitempty"`
}

// UpdateStatusRequest drives a status transition.
type UpdateStatusRequest struct {
	Status                   string  `json:"status" binding:"required"`
	Message                  *string `json:"message"`
	EstimatedPreparationTime *int    `json:"estimated_preparation_time" binding:"omitempty,min=1"`
}

// CancelOrderRequest cancels an order.
type CancelOrderRequest struct {
	CancellationReason string `json:"cancellation_reason" binding:"required"`
}

// FeedbackRequest rates a completed order.
type FeedbackRequest struct {
	Rating       int                   `json:"rating" binding:"required,min=1,max=5"`
	Feedback     *string               `json:"feedback"`
	ItemFeedback []ItemFeedbackRequest `json:"item_feedback"`
}

// ItemFeedbackRequest rates one line of a completed order.
type ItemFeedbackRequest struct {
	OrderItemID string  `json:"order_item_id" binding:"required"`
	Rating      int     `json:"rating" binding:"required,min=1,max=5"`
	Comment     *string `json:"comment"`
}

// OrderStatusView is the public, unauthenticated status shape.
type OrderStatusView struct {
	OrderID            string     `json:"order_id"`
	OrderNumber        string     `json:"order_number"`
	Status             string     `json:"status"`
	Token              *string    `json:"token,omitempty"`
	EstimatedReadyTime *time.Time `json:"estimated_ready_time,omitempty"`
}

// CreateOrder converts the user's cart into a durable order: snapshot
// the lines, allocate a token, write order/items/token/payment/timeline,
// zero the cart, invalidate caches and notify the queue service. The
// multi-row write has no cross-record transaction; a failure after the
// order row triggers compensating deletion of everything written so far.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return s.hydrate(ctx, existing)
		}
	}

	cart, err := s.store.GetCartByUserID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart == nil || cart.ItemCount == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.ErrEmptyCart
	}

	cartItems, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(cartItems) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.ErrEmptyCart
	}

	now := time.Now().UTC()
	prepTime := util.EstimatePreparationTime(cart.ItemCount)
	estimatedReady := now.Add(time.Duration(prepTime) * time.Minute)

	order := &models.Order{
		ID:                       uuid.New().String(),
		OrderNumber:              util.GenerateOrderNumber(s.orderPrefix),
		UserID:                   actor.ID,
		Status:                   models.OrderStatusPending,
		Subtotal:                 cart.Subtotal,
		Tax:                      cart.Tax,
		Total:                    cart.Total,
		SpecialInstructions:      req.SpecialInstructions,
		EstimatedPreparationTime: prepTime,
		EstimatedReadyTime:       &estimatedReady,
	}
	if actor.Name != "" {
		order.UserName = &actor.Name
	}
	if actor.Email != "" {
		order.UserEmail = &actor.Email
	}
	if actor.Phone != "" {
		order.UserPhone = &actor.Phone
	}
	if req.IdempotencyKey != "" {
		order.IdempotencyKey = &req.IdempotencyKey
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	token, err := s.writeOrderRecords(ctx, order, cart, cartItems, actor, req)
	if err != nil {
		s.compensate(ctx, order.ID)
		util.OrdersFailedTotal.WithLabelValues("partial_write").Inc()
		return nil, err
	}

	// Zero the cart only after every order record is in place.
	if err := s.store.DeleteCartItems(ctx, cart.ID); err != nil {
		s.logger.Error("Failed to clear cart items after order creation",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := s.store.UpdateCartTotals(ctx, cart.ID, 0, 0, 0, 0); err != nil {
		s.logger.Error("Failed to zero cart totals after order creation",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	s.cache.Delete(ctx, cache.CartKey(actor.ID))
	s.cache.DeletePattern(ctx, cache.OrderListPattern(actor.ID))

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("token", token.Token))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: now,
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      actor.ID,
		UserName:    actor.Name,
		UserPhone:   actor.Phone,
		Token:       token.Token,
		Total:       order.Total,
		ItemCount:   cart.ItemCount,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	s.notifyCreated(ctx, order, actor, cart.ItemCount)

	return s.hydrate(ctx, order)
}

// writeOrderRecords persists the dependent rows of a new order:
// lines, token, payment and the initial timeline entry.
func (s *OrderService) writeOrderRecords(
	ctx context.Context,
	order *models.Order,
	cart *models.Cart,
	cartItems []models.CartItem,
	actor models.Actor,
	req CreateOrderRequest,
) (*models.OrderToken, error) {
	for _, ci := range cartItems {
		item := &models.OrderItem{
			ID:                  uuid.New().String(),
			OrderID:             order.ID,
			MenuItemID:          ci.MenuItemID,
			MenuItemName:        ci.MenuItemName,
			MenuItemImage:       ci.MenuItemImage,
			Quantity:            ci.Quantity,
			UnitPrice:           ci.UnitPrice,
			TotalPrice:          ci.TotalPrice,
			SpecialInstructions: ci.SpecialInstructions,
			Customizations:      ci.Customizations,
		}
		if err := s.store.CreateOrderItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	token, err := s.tokens.Next(ctx)
	if err != nil {
		return nil, err
	}
	token.OrderID = order.ID
	if err := s.store.CreateOrderToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create order token: %w", err)
	}

	payment := &models.Payment{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		Method:          req.PaymentMethod,
		Status:          models.PaymentStatusPending,
		Amount:          cart.Total,
		UPIID:           req.UPIID,
		CardLast4Digits: req.CardLast4Digits,
		CardType:        req.CardType,
		InitiatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if err := s.appendTimeline(ctx, order.ID, models.OrderStatusPending, "Order created", actor); err != nil {
		return nil, err
	}

	return token, nil
}

// compensate deletes the partial records of a failed order creation.
func (s *OrderService) compensate(ctx context.Context, orderID string) {
	if err := s.store.DeleteOrderCascade(ctx, orderID); err != nil {
		s.logger.Error("Failed to compensate partial order creation",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

// GetOrder retrieves a fully hydrated order. An empty ownerID means any
// order (staff path); otherwise the order must belong to that user.
func (s *OrderService) GetOrder(ctx context.Context, orderID, ownerID string) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	key := cache.OrderKey(orderID)
	var order *models.Order

	var cached models.Order
	if s.cache.Get(ctx, key, &cached) {
		util.CacheHitsTotal.WithLabelValues("order").Inc()
		order = &cached
	} else {
		util.CacheMissesTotal.WithLabelValues("order").Inc()
		var err error
		order, err = s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load order: %w", err)
		}
		if order == nil {
			return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
		}
		s.cache.Set(ctx, key, order)
	}

	if ownerID != "" && order.UserID != ownerID {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}

	return s.hydrate(ctx, order)
}

// GetOrderStatus is the public, unauthenticated status lookup.
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderStatus")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}

	view := &OrderStatusView{
		OrderID:            order.ID,
		OrderNumber:        order.OrderNumber,
		Status:             order.Status,
		EstimatedReadyTime: order.EstimatedReadyTime,
	}
	if token, err := s.store.GetOrderTokenByOrderID(ctx, orderID); err == nil && token != nil {
		view.Token = &token.Token
	}
	return view, nil
}

// ListMyOrders returns a page of the user's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, userID, status string, page, pageSize int) ([]models.OrderView, int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListMyOrders")
	defer span.End()

	filter := store.OrderFilter{UserID: userID, Status: status}
	total, err := s.store.CountOrders(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := s.store.ListOrders(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	views := make([]models.OrderView, 0, len(orders))
	for i := range orders {
		view, err := s.hydrate(ctx, &orders[i])
		if err != nil {
			return nil, 0, err
		}
		views = append(views, *view)
	}
	return views, total, nil
}

// ListAllOrders is the staff listing with status and free-text filters.
func (s *OrderService) ListAllOrders(ctx context.Context, status, search string, page, pageSize int) ([]models.OrderSummary, int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	filter := store.OrderFilter{Status: status, Search: search}
	total, err := s.store.CountOrders(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := s.store.ListOrders(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	summaries, err := s.summarize(ctx, orders)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// ListActiveOrders returns every non-terminal order sorted by estimated
// ready time, for the staff board.
func (s *OrderService) ListActiveOrders(ctx context.Context) ([]models.OrderSummary, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListActiveOrders")
	defer span.End()

	orders, err := s.store.ListActiveOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return s.summarize(ctx, orders)
}

// UpdateStatus applies a status transition. Forward transitions are
// staff-only; a non-staff actor may only request cancellation.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, actor models.Actor, req UpdateStatusRequest) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.ValidOrderStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidTransition, req.Status)
	}
	if !actor.IsStaff() && req.Status != models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: only staff can change order status", apperr.ErrForbidden)
	}

	// Staff act on any order; everyone else only on their own, which
	// matters for the cancellation path below.
	var order *models.Order
	var err error
	if actor.IsStaff() {
		order, err = s.store.GetOrderByID(ctx, orderID)
	} else {
		order, err = s.store.GetOrderForUser(ctx, orderID, actor.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}

	if !transitionAllowed(order.Status, req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, order.Status, req.Status)
	}

	now := time.Now().UTC()

	if req.Status == models.OrderStatusCancelled {
		reason := "Cancelled by staff"
		if req.Message != nil {
			reason = *req.Message
		}
		return s.cancel(ctx, order, actor, reason)
	}

	upd := store.StatusUpdate{Status: req.Status}
	switch req.Status {
	case models.OrderStatusPreparing:
		if req.EstimatedPreparationTime != nil {
			ready := now.Add(time.Duration(*req.EstimatedPreparationTime) * time.Minute)
			upd.EstimatedPreparationTime = req.EstimatedPreparationTime
			upd.EstimatedReadyTime = &ready
		}
	case models.OrderStatusReady:
		upd.ActualReadyTime = &now
		// Approximation carried over from the original system: elapsed
		// minutes since the last update, not since PENDING.
		start := order.UpdatedAt
		if start.IsZero() {
			start = order.CreatedAt
		}
		actual := int(now.Sub(start).Minutes())
		upd.ActualPreparationTime = &actual
	case models.OrderStatusCompleted:
		upd.CompletedAt = &now
		util.OrdersCompletedTotal.Inc()
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, upd); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	message := fmt.Sprintf("Order status changed to %s", req.Status)
	if req.Message != nil {
		message = *req.Message
	}
	if err := s.appendTimeline(ctx, orderID, req.Status, message, actor); err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(req.Status).Inc()
	s.cache.Delete(ctx, cache.OrderKey(orderID))
	s.cache.DeletePattern(ctx, cache.OrderListPattern(order.UserID))

	s.publishStatusChanged(ctx, order, req.Status)
	s.notifyStatusChanged(ctx, order, req.Status)

	return s.GetOrder(ctx, orderID, "")
}

// Cancel cancels a non-terminal order owned by the user and forces its
// payment to CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, orderID string, actor models.Actor, req CancelOrderRequest) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}

	return s.cancel(ctx, order, actor, req.CancellationReason)
}

func (s *OrderService) cancel(ctx context.Context, order *models.Order, actor models.Actor, reason string) (*models.OrderView, error) {
	if models.TerminalOrderStatus(order.Status) {
		return nil, fmt.Errorf("%w: cannot cancel %s order", apperr.ErrInvalidTransition, order.Status)
	}

	if err := s.store.CancelOrder(ctx, order.ID, reason, actor.ID); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if err := s.store.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusCancelled); err != nil {
		s.logger.Error("Failed to cancel payment",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	message := fmt.Sprintf("Order cancelled: %s", reason)
	if err := s.appendTimeline(ctx, order.ID, models.OrderStatusCancelled, message, actor); err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.cache.Delete(ctx, cache.OrderKey(order.ID))
	s.cache.DeletePattern(ctx, cache.OrderListPattern(order.UserID))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Reason:      reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	s.notifyStatusChanged(ctx, order, models.OrderStatusCancelled)

	return s.GetOrder(ctx, order.ID, "")
}

// SubmitFeedback records a rating on a completed order. Resubmission
// overwrites the previous rating and per-line feedback.
func (s *OrderService) SubmitFeedback(ctx context.Context, orderID string, actor models.Actor, req FeedbackRequest) (*models.OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SubmitFeedback")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: can only rate completed orders", apperr.ErrInvalidState)
	}

	if err := s.store.SetOrderFeedback(ctx, orderID, req.Rating, req.Feedback); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	if len(req.ItemFeedback) > 0 {
		entries := make([]models.OrderItemFeedback, 0, len(req.ItemFeedback))
		for _, f := range req.ItemFeedback {
			entries = append(entries, models.OrderItemFeedback{
				ID:          uuid.New().String(),
				OrderID:     orderID,
				OrderItemID: f.OrderItemID,
				Rating:      f.Rating,
				Comment:     f.Comment,
			})
		}
		if err := s.store.ReplaceOrderItemFeedback(ctx, orderID, entries); err != nil {
			return nil, fmt.Errorf("failed to save item feedback: %w", err)
		}
	}

	s.cache.Delete(ctx, cache.OrderKey(orderID))
	return s.GetOrder(ctx, orderID, actor.ID)
}

// TodayStatistics computes the current day's rollup on demand.
func (s *OrderService) TodayStatistics(ctx context.Context) (*models.TodayStatistics, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TodayStatistics")
	defer span.End()

	start := util.StartOfDay(time.Now())
	orders, err := s.store.ListOrdersCreatedBetween(ctx, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load today's orders: %w", err)
	}

	stats := &models.TodayStatistics{Date: start.Format("2006-01-02")}
	var prepTimes []int
	for _, o := range orders {
		stats.TotalOrders++
		switch o.Status {
		case models.OrderStatusPending:
			stats.PendingOrders++
		case models.OrderStatusConfirmed:
			stats.ConfirmedOrders++
		case models.OrderStatusPreparing:
			stats.PreparingOrders++
		case models.OrderStatusReady:
			stats.ReadyOrders++
		case models.OrderStatusCompleted:
			stats.CompletedOrders++
		case models.OrderStatusCancelled:
			stats.CancelledOrders++
		case models.OrderStatusRefunded:
			stats.RefundedOrders++
		}
		if o.Status != models.OrderStatusCancelled && o.Status != models.OrderStatusRefunded {
			stats.TotalRevenue += o.Total
			stats.TotalTax += o.Tax
		}
		if o.ActualPreparationTime != nil {
			prepTimes = append(prepTimes, *o.ActualPreparationTime)
		}
	}

	stats.TotalRevenue = util.Round2(stats.TotalRevenue)
	stats.TotalTax = util.Round2(stats.TotalTax)
	if stats.TotalOrders > 0 {
		stats.AvgOrderValue = util.Round2(stats.TotalRevenue / float64(stats.TotalOrders))
	}
	if len(prepTimes) > 0 {
		sum := 0
		for _, t := range prepTimes {
			sum += t
		}
		stats.AvgPreparationTime = sum / len(prepTimes)
	}
	return stats, nil
}

// StatisticsRange reads the daily rollup rows for an inclusive date range.
func (s *OrderService) StatisticsRange(ctx context.Context, startDate, endDate string) ([]models.DailyStatistics, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.StatisticsRange")
	defer span.End()
	return s.store.ListDailyStatistics(ctx, startDate, endDate)
}

// ListPayments is the admin payment listing.
func (s *OrderService) ListPayments(ctx context.Context, status, method string, page, pageSize int) ([]models.Payment, int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListPayments")
	defer span.End()
	return s.store.ListPayments(ctx, status, method, pageSize, (page-1)*pageSize)
}

// hydrate attaches lines, token, payment and timeline to an order row.
func (s *OrderService) hydrate(ctx context.Context, order *models.Order) (*models.OrderView, error) {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	token, err := s.store.GetOrderTokenByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order token: %w", err)
	}

	payment, err := s.store.GetPaymentByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	timeline, err := s.store.GetTimeline(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}

	return &models.OrderView{
		Order:    *order,
		Items:    items,
		Token:    token,
		Payment:  payment,
		Timeline: timeline,
	}, nil
}

func (s *OrderService) summarize(ctx context.Context, orders []models.Order) ([]models.OrderSummary, error) {
	summaries := make([]models.OrderSummary, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		summary := models.OrderSummary{
			ID:                 o.ID,
			OrderNumber:        o.OrderNumber,
			Status:             o.Status,
			Total:              o.Total,
			EstimatedReadyTime: o.EstimatedReadyTime,
			CreatedAt:          o.CreatedAt,
		}
		if n, err := s.store.CountOrderItems(ctx, o.ID); err == nil {
			summary.ItemCount = n
		}
		if token, err := s.store.GetOrderTokenByOrderID(ctx, o.ID); err == nil && token != nil {
			summary.Token = &token.Token
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *OrderService) appendTimeline(ctx context.Context, orderID, status, message string, actor models.Actor) error {
	entry := &models.TimelineEntry{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if actor.ID != "" {
		entry.UpdatedBy = &actor.ID
	}
	if actor.Name != "" {
		entry.UpdatedByName = &actor.Name
	}
	if err := s.store.AppendTimelineEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}
	return nil
}

// notifyCreated is fire-and-forget: any failure is logged and counted,
// never surfaced to the order operation that triggered it.
func (s *OrderService) notifyCreated(ctx context.Context, order *models.Order, actor models.Actor, itemCount int) {
	err := s.notifier.NotifyOrderCreated(ctx, models.QueueNotification{
		OrderID:   order.ID,
		UserID:    order.UserID,
		UserName:  actor.Name,
		UserPhone: actor.Phone,
		ItemCount: itemCount,
		Priority:  "NORMAL",
	})
	if err != nil {
		util.QueueNotifyFailuresTotal.WithLabelValues("created").Inc()
		s.logger.Warn("Queue notification failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) notifyStatusChanged(ctx context.Context, order *models.Order, newStatus string) {
	upd := models.QueueStatusUpdate{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      newStatus,
	}
	if token, err := s.store.GetOrderTokenByOrderID(ctx, order.ID); err == nil && token != nil {
		upd.Token = token.Token
	}
	if err := s.notifier.NotifyStatusChanged(ctx, upd); err != nil {
		util.QueueNotifyFailuresTotal.WithLabelValues("status").Inc()
		s.logger.Warn("Queue status notification failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, newStatus string) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		OldStatus:   order.Status,
		NewStatus:   newStatus,
	}
	if token, err := s.store.GetOrderTokenByOrderID(ctx, order.ID); err == nil && token != nil {
		event.Token = token.Token
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
