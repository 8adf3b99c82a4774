package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/store"
)

// fakeStore is an in-memory OrderStore/CartStore/TokenStore used by the
// service tests. Error fields inject failures at specific write points.
type fakeStore struct {
	mu sync.Mutex

	carts        map[string]*models.Cart      // keyed by cart ID
	cartsByUser  map[string]string            // user ID -> cart ID
	cartItems    map[string][]models.CartItem // keyed by cart ID
	orders       map[string]*models.Order
	orderItems   map[string][]models.OrderItem
	tokens       map[string]*models.OrderToken // keyed by order ID
	payments     map[string]*models.Payment    // keyed by order ID
	timeline     map[string][]models.TimelineEntry
	itemFeedback map[string][]models.OrderItemFeedback
	dailyStats   []models.DailyStatistics
	tokenCounter map[string]int // keyed by day

	createOrderErr   error
	createItemErr    error
	createTokenErr   error
	createPaymentErr error
	nextTokenErr     error
	cascadeDeleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts:        make(map[string]*models.Cart),
		cartsByUser:  make(map[string]string),
		cartItems:    make(map[string][]models.CartItem),
		orders:       make(map[string]*models.Order),
		orderItems:   make(map[string][]models.OrderItem),
		tokens:       make(map[string]*models.OrderToken),
		payments:     make(map[string]*models.Payment),
		timeline:     make(map[string][]models.TimelineEntry),
		itemFeedback: make(map[string][]models.OrderItemFeedback),
		tokenCounter: make(map[string]int),
	}
}

func (f *fakeStore) GetCartByUserID(_ context.Context, userID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.cartsByUser[userID]
	if !ok {
		return nil, nil
	}
	c := *f.carts[id]
	return &c, nil
}

func (f *fakeStore) CreateCart(_ context.Context, cart *models.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	cart.CreatedAt = now
	cart.UpdatedAt = now
	c := *cart
	f.carts[cart.ID] = &c
	f.cartsByUser[cart.UserID] = cart.ID
	return nil
}

func (f *fakeStore) UpdateCartTotals(_ context.Context, cartID string, subtotal, tax, total float64, itemCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[cartID]
	if !ok {
		return nil
	}
	c.Subtotal = subtotal
	c.Tax = tax
	c.Total = total
	c.ItemCount = itemCount
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) GetCartItems(_ context.Context, cartID string) ([]models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.CartItem, len(f.cartItems[cartID]))
	copy(items, f.cartItems[cartID])
	return items, nil
}

func (f *fakeStore) GetCartItem(_ context.Context, cartID, itemID string) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.cartItems[cartID] {
		if it.ID == itemID {
			c := it
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetCartItemByMenuItem(_ context.Context, cartID, menuItemID string) (*models.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.cartItems[cartID] {
		if it.MenuItemID == menuItemID {
			c := it
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateCartItem(_ context.Context, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.AddedAt = time.Now().UTC()
	f.cartItems[item.CartID] = append(f.cartItems[item.CartID], *item)
	return nil
}

func (f *fakeStore) UpdateCartItem(_ context.Context, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.cartItems[item.CartID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
		}
	}
	return nil
}

func (f *fakeStore) DeleteCartItem(_ context.Context, cartID, itemID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.cartItems[cartID]
	for i := range items {
		if items[i].ID == itemID {
			f.cartItems[cartID] = append(items[:i], items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) DeleteCartItems(_ context.Context, cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartItems[cartID] = nil
	return nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	if f.createOrderErr != nil {
		return f.createOrderErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	o := *order
	f.orders[order.ID] = &o
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (f *fakeStore) GetOrderForUser(_ context.Context, id, userID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.UserID != userID {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID string, upd store.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil
	}
	o.Status = upd.Status
	if upd.EstimatedPreparationTime != nil {
		o.EstimatedPreparationTime = *upd.EstimatedPreparationTime
	}
	if upd.EstimatedReadyTime != nil {
		o.EstimatedReadyTime = upd.EstimatedReadyTime
	}
	if upd.ActualReadyTime != nil {
		o.ActualReadyTime = upd.ActualReadyTime
	}
	if upd.ActualPreparationTime != nil {
		o.ActualPreparationTime = upd.ActualPreparationTime
	}
	if upd.CompletedAt != nil {
		o.CompletedAt = upd.CompletedAt
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID, reason, cancelledBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	o.Status = models.OrderStatusCancelled
	o.CancellationReason = &reason
	o.CancelledBy = &cancelledBy
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

func (f *fakeStore) SetOrderFeedback(_ context.Context, orderID string, rating int, feedback *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	o.Rating = &rating
	o.Feedback = feedback
	o.FeedbackSubmittedAt = &now
	return nil
}

func (f *fakeStore) ReplaceOrderItemFeedback(_ context.Context, orderID string, entries []models.OrderItemFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemFeedback[orderID] = append([]models.OrderItemFeedback(nil), entries...)
	return nil
}

func (f *fakeStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	if f.createItemErr != nil {
		return f.createItemErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderItems[item.OrderID] = append(f.orderItems[item.OrderID], *item)
	return nil
}

func (f *fakeStore) GetOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]models.OrderItem, len(f.orderItems[orderID]))
	copy(items, f.orderItems[orderID])
	return items, nil
}

func (f *fakeStore) CountOrderItems(_ context.Context, orderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orderItems[orderID]), nil
}

func (f *fakeStore) CreateOrderToken(_ context.Context, token *models.OrderToken) error {
	if f.createTokenErr != nil {
		return f.createTokenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := *token
	f.tokens[token.OrderID] = &t
	return nil
}

func (f *fakeStore) GetOrderTokenByOrderID(_ context.Context, orderID string) (*models.OrderToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[orderID]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	if f.createPaymentErr != nil {
		return f.createPaymentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *payment
	f.payments[payment.OrderID] = &p
	return nil
}

func (f *fakeStore) GetPaymentByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[orderID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (f *fakeStore) UpdatePaymentStatus(_ context.Context, orderID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[orderID]; ok {
		p.Status = status
	}
	return nil
}

func (f *fakeStore) AppendTimelineEntry(_ context.Context, entry *models.TimelineEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline[entry.OrderID] = append(f.timeline[entry.OrderID], *entry)
	return nil
}

func (f *fakeStore) GetTimeline(_ context.Context, orderID string) ([]models.TimelineEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]models.TimelineEntry, len(f.timeline[orderID]))
	copy(entries, f.timeline[orderID])
	return entries, nil
}

func (f *fakeStore) matching(filter store.OrderFilter) []models.Order {
	var out []models.Order
	for _, o := range f.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(o.OrderNumber, filter.Search) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) ListOrders(_ context.Context, filter store.OrderFilter, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.matching(filter)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) CountOrders(_ context.Context, filter store.OrderFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matching(filter)), nil
}

func (f *fakeStore) ListActiveOrders(_ context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		switch o.Status {
		case models.OrderStatusPending, models.OrderStatusConfirmed,
			models.OrderStatusPreparing, models.OrderStatusReady:
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].EstimatedReadyTime, out[j].EstimatedReadyTime
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.Before(*tj)
	})
	return out, nil
}

func (f *fakeStore) ListOrdersCreatedBetween(_ context.Context, from, to time.Time) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPayments(_ context.Context, status, method string, limit, offset int) ([]models.Payment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Payment
	for _, p := range f.payments {
		if status != "" && p.Status != status {
			continue
		}
		if method != "" && p.Method != method {
			continue
		}
		all = append(all, *p)
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeStore) ListDailyStatistics(_ context.Context, startDate, endDate string) ([]models.DailyStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DailyStatistics
	for _, d := range f.dailyStats {
		if d.Date >= startDate && d.Date <= endDate {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteOrderCascade(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orders, orderID)
	delete(f.orderItems, orderID)
	delete(f.tokens, orderID)
	delete(f.payments, orderID)
	delete(f.timeline, orderID)
	f.cascadeDeleted = append(f.cascadeDeleted, orderID)
	return nil
}

func (f *fakeStore) NextTokenNumber(_ context.Context, day time.Time) (int, error) {
	if f.nextTokenErr != nil {
		return 0, f.nextTokenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format("2006-01-02")
	f.tokenCounter[key]++
	return f.tokenCounter[key], nil
}

// fakeCache stores marshaled values in memory.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, dest) == nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	f.entries[key] = b
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.entries, k)
		f.deleted = append(f.deleted, k)
	}
}

func (f *fakeCache) DeletePattern(_ context.Context, pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
		}
	}
	f.deleted = append(f.deleted, pattern)
}

// fakeCatalog resolves menu items from a fixed map.
type fakeCatalog struct {
	items map[string]models.MenuItem
}

func newFakeCatalog(items ...models.MenuItem) *fakeCatalog {
	m := make(map[string]models.MenuItem, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return &fakeCatalog{items: m}
}

func (f *fakeCatalog) GetMenuItem(_ context.Context, id string) (*models.MenuItem, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := it
	return &c, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	changed   []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, e)
	return nil
}

func (f *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return nil
}

// fakeNotifier records queue notifications and can fail on demand.
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []models.QueueNotification
	statusUpdates []models.QueueStatusUpdate
	err           error
}

func (f *fakeNotifier) NotifyOrderCreated(_ context.Context, n models.QueueNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotifier) NotifyStatusChanged(_ context.Context, u models.QueueStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statusUpdates = append(f.statusUpdates, u)
	return nil
}
