package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/util"

	"go.uber.org/zap"
)

// CatalogClient fetches menu item details from the external catalog
// service. Calls carry a short fixed timeout; failures surface to the
// caller because a cart line cannot be priced without the item.
type CatalogClient struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

// menuItemEnvelope is the catalog service's response wrapper.
type menuItemEnvelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *models.MenuItem `json:"data"`
}

// GetMenuItem resolves one menu item by id.
func (c *CatalogClient) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	ctx, span := util.StartSpan(ctx, "CatalogClient.GetMenuItem")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CatalogLookupLatency.Observe(time.Since(start).Seconds())
	}()

	url := fmt.Sprintf("%s/api/menu/items/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("Catalog lookup failed",
			zap.String("menu_item_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("%w: catalog lookup: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: menu item %s", apperr.ErrNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Catalog returned unexpected status",
			zap.String("menu_item_id", id),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: catalog status %d", apperr.ErrUpstream, resp.StatusCode)
	}

	var envelope menuItemEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding catalog response: %v", apperr.ErrUpstream, err)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: menu item %s", apperr.ErrNotFound, id)
	}

	return envelope.Data, nil
}
