package service

import (
	"context"
	"fmt"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/cache"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartService owns the cart and cart-line lifecycle. Every mutation
// recomputes the aggregate totals and invalidates the cached cart view.
type CartService struct {
	store   CartStore
	cache   Cache
	catalog Catalog
	taxPct  float64
	maxQty  int
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, cache Cache, catalog Catalog, taxPct float64, maxQty int) *CartService {
	return &CartService{
		store:   store,
		cache:   cache,
		catalog: catalog,
		taxPct:  taxPct,
		maxQty:  maxQty,
		logger:  util.GetLogger(),
	}
}

// AddItemRequest adds or merges one line into the cart.
type AddItemRequest struct {
	MenuItemID          string                `json:"menu_item_id" binding:"required"`
	Quantity            int                   `json:"quantity" binding:"required,min=1"`
	SpecialInstructions *string               `json:"special_instructions"`
	Customizations      models.Customizations `json:"customizations"`
}

// UpdateItemRequest mutates an existing line. Nil fields are untouched.
type UpdateItemRequest struct {
	Quantity            *int                   `json:"quantity" binding:"omitempty,min=1"`
	SpecialInstructions *string                `json:"special_instructions"`
	Customizations      *models.Customizations `json:"customizations"`
}

// GetCart returns the user's cart with lines, creating an empty cart on
// first access. The result is cache-eligible.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	key := cache.CartKey(userID)
	var cached models.CartView
	if s.cache.Get(ctx, key, &cached) {
		util.CacheHitsTotal.WithLabelValues("cart").Inc()
		return &cached, nil
	}
	util.CacheMissesTotal.WithLabelValues("cart").Inc()

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	view := &models.CartView{Cart: *cart, Items: items}
	s.cache.Set(ctx, key, view)
	return view, nil
}

// AddItem resolves the menu item via the catalog and adds it to the
// cart, merging quantity into an existing line for the same item.
func (s *CartService) AddItem(ctx context.Context, userID string, req AddItemRequest) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	menuItem, err := s.catalog.GetMenuItem(ctx, req.MenuItemID)
	if err != nil {
		return nil, err
	}

	if req.Quantity > s.maxQty {
		return nil, fmt.Errorf("%w: maximum quantity per item is %d", apperr.ErrLimitExceeded, s.maxQty)
	}

	existing, err := s.store.GetCartItemByMenuItem(ctx, cart.ID, req.MenuItemID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		newQty := existing.Quantity + req.Quantity
		if newQty > s.maxQty {
			return nil, fmt.Errorf("%w: maximum quantity per item is %d", apperr.ErrLimitExceeded, s.maxQty)
		}
		existing.Quantity = newQty
		existing.TotalPrice = util.Round2(menuItem.Price * float64(newQty))
		if req.SpecialInstructions != nil {
			existing.SpecialInstructions = req.SpecialInstructions
		}
		if req.Customizations != nil {
			existing.Customizations = req.Customizations
		}
		if err := s.store.UpdateCartItem(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	} else {
		item := &models.CartItem{
			ID:                  uuid.New().String(),
			CartID:              cart.ID,
			MenuItemID:          menuItem.ID,
			MenuItemName:        menuItem.Name,
			MenuItemImage:       menuItem.Image,
			Quantity:            req.Quantity,
			UnitPrice:           menuItem.Price,
			TotalPrice:          util.Round2(menuItem.Price * float64(req.Quantity)),
			SpecialInstructions: req.SpecialInstructions,
			Customizations:      req.Customizations,
		}
		if err := s.store.CreateCartItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to create cart item: %w", err)
		}
	}

	if err := s.recompute(ctx, cart.ID); err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.cache.Delete(ctx, cache.CartKey(userID))
	return s.GetCart(ctx, userID)
}

// UpdateItem mutates a line owned by the user's cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, req UpdateItemRequest) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.store.GetCartItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
	}

	if req.Quantity != nil {
		if *req.Quantity > s.maxQty {
			return nil, fmt.Errorf("%w: maximum quantity per item is %d", apperr.ErrLimitExceeded, s.maxQty)
		}
		item.Quantity = *req.Quantity
		item.TotalPrice = util.Round2(item.UnitPrice * float64(*req.Quantity))
	}
	if req.SpecialInstructions != nil {
		item.SpecialInstructions = req.SpecialInstructions
	}
	if req.Customizations != nil {
		item.Customizations = *req.Customizations
	}

	if err := s.store.UpdateCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	if err := s.recompute(ctx, cart.ID); err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	s.cache.Delete(ctx, cache.CartKey(userID))
	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a line from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteCartItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete cart item: %w", err)
	}
	if deleted == 0 {
		return nil, fmt.Errorf("%w: cart item %s", apperr.ErrNotFound, itemID)
	}

	if err := s.recompute(ctx, cart.ID); err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	s.cache.Delete(ctx, cache.CartKey(userID))
	return s.GetCart(ctx, userID)
}

// Clear removes all lines and zeroes the aggregate totals. The cart row
// itself is never deleted.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteCartItems(ctx, cart.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if err := s.store.UpdateCartTotals(ctx, cart.ID, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("failed to zero cart totals: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	s.cache.Delete(ctx, cache.CartKey(userID))
	return nil
}

func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.store.GetCartByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}

	cart = &models.Cart{
		ID:            uuid.New().String(),
		UserID:        userID,
		TaxPercentage: s.taxPct,
	}
	if err := s.store.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	s.logger.Info("Cart created", zap.String("user_id", userID), zap.String("cart_id", cart.ID))
	return cart, nil
}

// recompute rebuilds the aggregate figures from the lines. Idempotent;
// called after every mutation.
func (s *CartService) recompute(ctx context.Context, cartID string) error {
	items, err := s.store.GetCartItems(ctx, cartID)
	if err != nil {
		return fmt.Errorf("failed to load cart items: %w", err)
	}

	var subtotal float64
	var itemCount int
	for _, item := range items {
		subtotal += item.TotalPrice
		itemCount += item.Quantity
	}

	tax := util.Round2(subtotal * s.taxPct / 100)
	total := util.Round2(subtotal + tax)

	if err := s.store.UpdateCartTotals(ctx, cartID, subtotal, tax, total, itemCount); err != nil {
		return fmt.Errorf("failed to update cart totals: %w", err)
	}
	return nil
}
