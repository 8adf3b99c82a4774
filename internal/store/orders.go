package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"canteen-order-service/internal/models"
)

// CreateOrder inserts the order snapshot row
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders
			(id, order_number, user_id, user_name, user_email, user_phone, status,
			 subtotal, tax, total, special_instructions,
			 estimated_preparation_time, estimated_ready_time, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.UserID, order.UserName, order.UserEmail, order.UserPhone,
		order.Status, order.Subtotal, order.Tax, order.Total, order.SpecialInstructions,
		order.EstimatedPreparationTime, order.EstimatedReadyTime, order.IdempotencyKey).
		Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order; nil if absent
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order owned by the given user; nil if absent
func (s *Store) GetOrderForUser(ctx context.Context, id, userID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key; nil if absent
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// StatusUpdate carries the optional fields written alongside a status change.
// Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	Status                   string
	EstimatedPreparationTime *int
	EstimatedReadyTime       *time.Time
	ActualReadyTime          *time.Time
	ActualPreparationTime    *int
	CompletedAt              *time.Time
}

// UpdateOrderStatus applies a status transition
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, upd StatusUpdate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     estimated_preparation_time = COALESCE($2, estimated_preparation_time),
		     estimated_ready_time = COALESCE($3, estimated_ready_time),
		     actual_ready_time = COALESCE($4, actual_ready_time),
		     actual_preparation_time = COALESCE($5, actual_preparation_time),
		     completed_at = COALESCE($6, completed_at),
		     updated_at = NOW()
		 WHERE id = $7`,
		upd.Status, upd.EstimatedPreparationTime, upd.EstimatedReadyTime,
		upd.ActualReadyTime, upd.ActualPreparationTime, upd.CompletedAt, orderID)
	return err
}

// CancelOrder stamps the cancellation fields
func (s *Store) CancelOrder(ctx context.Context, orderID, reason, cancelledBy string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, cancelled_at = NOW(), cancellation_reason = $2,
		     cancelled_by = $3, updated_at = NOW()
		 WHERE id = $4`,
		models.OrderStatusCancelled, reason, cancelledBy, orderID)
	return err
}

// SetOrderFeedback writes (or overwrites) the order-level rating
func (s *Store) SetOrderFeedback(ctx context.Context, orderID string, rating int, feedback *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET rating = $1, feedback = $2, feedback_submitted_at = NOW(), updated_at = NOW()
		 WHERE id = $3`,
		rating, feedback, orderID)
	return err
}

// ReplaceOrderItemFeedback rewrites the per-line feedback rows for an order
func (s *Store) ReplaceOrderItemFeedback(ctx context.Context, orderID string, entries []models.OrderItemFeedback) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM order_item_feedback WHERE order_id = $1", orderID); err != nil {
		return err
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_item_feedback (id, order_id, order_item_id, rating, comment)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.OrderID, e.OrderItemID, e.Rating, e.Comment); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreateOrderItem inserts a frozen order line
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_items
			(id, order_id, menu_item_id, menu_item_name, menu_item_image,
			 quantity, unit_price, total_price, special_instructions, customizations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.OrderID, item.MenuItemID, item.MenuItemName, item.MenuItemImage,
		item.Quantity, item.UnitPrice, item.TotalPrice, item.SpecialInstructions, item.Customizations)
	return err
}

// GetOrderItems retrieves all lines of an order
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// CountOrderItems counts the lines of an order
func (s *Store) CountOrderItems(ctx context.Context, orderID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM order_items WHERE order_id = $1", orderID)
	return n, err
}

// NextTokenNumber atomically allocates the next per-day sequence number.
// The counter row is upserted with a single increment-and-fetch so two
// concurrent allocations can never observe the same value.
func (s *Store) NextTokenNumber(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`INSERT INTO token_counters (day, current_number)
		 VALUES ($1, 1)
		 ON CONFLICT (day)
		 DO UPDATE SET current_number = token_counters.current_number + 1
		 RETURNING current_number`,
		day.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate token number: %w", err)
	}
	return n, nil
}

// CreateOrderToken inserts the pickup token row
func (s *Store) CreateOrderToken(ctx context.Context, token *models.OrderToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_tokens
			(id, order_id, token, token_number, token_prefix, generated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.OrderID, token.Token, token.TokenNumber, token.TokenPrefix,
		token.GeneratedAt, token.ExpiresAt)
	return err
}

// GetOrderTokenByOrderID retrieves the token for an order; nil if absent
func (s *Store) GetOrderTokenByOrderID(ctx context.Context, orderID string) (*models.OrderToken, error) {
	var token models.OrderToken
	err := s.db.GetContext(ctx, &token,
		"SELECT * FROM order_tokens WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// CreatePayment inserts the payment record for an order
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments
			(id, order_id, method, status, amount, upi_id, card_last_4_digits,
			 card_type, initiated_at, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		payment.ID, payment.OrderID, payment.Method, payment.Status, payment.Amount,
		payment.UPIID, payment.CardLast4Digits, payment.CardType,
		payment.InitiatedAt, payment.RetryCount)
	return err
}

// GetPaymentByOrderID retrieves the payment for an order; nil if absent
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates the payment status for an order
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1 WHERE order_id = $2", status, orderID)
	return err
}

// AppendTimelineEntry appends one audit row; the timeline is never updated
func (s *Store) AppendTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_timeline (id, order_id, status, message, updated_by, updated_by_name, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.OrderID, entry.Status, entry.Message,
		entry.UpdatedBy, entry.UpdatedByName, entry.Timestamp)
	return err
}

// GetTimeline retrieves the audit trail in timestamp order
func (s *Store) GetTimeline(ctx context.Context, orderID string) ([]models.TimelineEntry, error) {
	entries := []models.TimelineEntry{}
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM order_timeline WHERE order_id = $1 ORDER BY timestamp", orderID)
	return entries, err
}

// OrderFilter narrows order listing queries.
type OrderFilter struct {
	UserID string
	Status string
	Search string
}

func (f OrderFilter) where() (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(order_number ILIKE $%d OR user_name ILIKE $%d OR user_email ILIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListOrders retrieves a page of orders, newest first
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter, limit, offset int) ([]models.Order, error) {
	where, args := filter.where()
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT * FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// CountOrders counts orders matching the filter
func (s *Store) CountOrders(ctx context.Context, filter OrderFilter) (int, error) {
	where, args := filter.where()
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders"+where, args...)
	return n, err
}

// ListActiveOrders retrieves all non-terminal orders sorted by
// estimated ready time
func (s *Store) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders
		 WHERE status IN ($1, $2, $3, $4)
		 ORDER BY estimated_ready_time`,
		models.OrderStatusPending, models.OrderStatusConfirmed,
		models.OrderStatusPreparing, models.OrderStatusReady)
	return orders, err
}

// ListOrdersCreatedBetween retrieves orders created in [from, to)
func (s *Store) ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE created_at >= $1 AND created_at < $2", from, to)
	return orders, err
}

// ListPayments retrieves a page of payments, newest first
func (s *Store) ListPayments(ctx context.Context, status, method string, limit, offset int) ([]models.Payment, int, error) {
	conds := []string{}
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if method != "" {
		args = append(args, method)
		conds = append(conds, fmt.Sprintf("method = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments"+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT * FROM payments%s ORDER BY initiated_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	payments := []models.Payment{}
	if err := s.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListDailyStatistics retrieves rollup rows for a date range (inclusive)
func (s *Store) ListDailyStatistics(ctx context.Context, startDate, endDate string) ([]models.DailyStatistics, error) {
	stats := []models.DailyStatistics{}
	err := s.db.SelectContext(ctx, &stats,
		`SELECT to_char(date, 'YYYY-MM-DD') AS date,
		        total_orders, completed_orders, cancelled_orders,
		        total_revenue, total_tax, avg_order_value, avg_preparation_time
		 FROM daily_statistics
		 WHERE date >= $1 AND date <= $2
		 ORDER BY date`,
		startDate, endDate)
	return stats, err
}

// DeleteOrderCascade removes an order and every dependent row. Used as
// compensation when a later write in order creation fails.
func (s *Store) DeleteOrderCascade(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"order_timeline", "payments", "order_tokens", "order_items"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE order_id = $1", table), orderID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID); err != nil {
		return err
	}

	return tx.Commit()
}
