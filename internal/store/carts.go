package store

import (
	"context"
	"database/sql"

	"canteen-order-service/internal/models"
)

// GetCartByUserID retrieves the user's cart, or nil if none exists yet.
func (s *Store) GetCartByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM shopping_carts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart inserts a new empty cart
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO shopping_carts (id, user_id, subtotal, tax, tax_percentage, total, item_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		cart.ID, cart.UserID, cart.Subtotal, cart.Tax, cart.TaxPercentage, cart.Total, cart.ItemCount).
		Scan(&cart.CreatedAt, &cart.UpdatedAt)
}

// UpdateCartTotals writes the recomputed aggregate figures
func (s *Store) UpdateCartTotals(ctx context.Context, cartID string, subtotal, tax, total float64, itemCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE shopping_carts
		 SET subtotal = $1, tax = $2, total = $3, item_count = $4, updated_at = NOW()
		 WHERE id = $5`,
		subtotal, tax, total, itemCount, cartID)
	return err
}

// GetCartItems retrieves all lines of a cart
func (s *Store) GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY added_at", cartID)
	return items, err
}

// GetCartItem retrieves a single line by id, scoped to the cart; nil if absent.
func (s *Store) GetCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCartItemByMenuItem retrieves the line for a menu item, if any.
// Lines collapse by menu_item_id regardless of customizations.
func (s *Store) GetCartItemByMenuItem(ctx context.Context, cartID, menuItemID string) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND menu_item_id = $2", cartID, menuItemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateCartItem inserts a new cart line
func (s *Store) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items
			(id, cart_id, menu_item_id, menu_item_name, menu_item_image,
			 quantity, unit_price, total_price, special_instructions, customizations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING added_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		item.ID, item.CartID, item.MenuItemID, item.MenuItemName, item.MenuItemImage,
		item.Quantity, item.UnitPrice, item.TotalPrice, item.SpecialInstructions, item.Customizations).
		Scan(&item.AddedAt, &item.UpdatedAt)
}

// UpdateCartItem writes the mutable fields of a cart line
func (s *Store) UpdateCartItem(ctx context.Context, item *models.CartItem) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = $1, total_price = $2, special_instructions = $3,
		     customizations = $4, updated_at = NOW()
		 WHERE id = $5`,
		item.Quantity, item.TotalPrice, item.SpecialInstructions, item.Customizations, item.ID)
	return err
}

// DeleteCartItem removes a line; returns the number of rows removed
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteCartItems removes every line of a cart
func (s *Store) DeleteCartItems(ctx context.Context, cartID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}
