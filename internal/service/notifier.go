package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"canteen-order-service/internal/models"
	"canteen-order-service/internal/util"

	"go.uber.org/zap"
)

// QueueClient notifies the external queue/ticketing service. Calls are
// time-bounded and never retried here; the kafka-driven worker owns the
// retrying delivery path.
type QueueClient struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewQueueClient creates a new queue service client
func NewQueueClient(baseURL string, timeout time.Duration) *QueueClient {
	return &QueueClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

// NotifyOrderCreated asks the queue service to create a queue entry.
func (c *QueueClient) NotifyOrderCreated(ctx context.Context, n models.QueueNotification) error {
	return c.post(ctx, c.baseURL+"/api/queue", n)
}

// NotifyStatusChanged tells the queue service an order changed status.
func (c *QueueClient) NotifyStatusChanged(ctx context.Context, u models.QueueStatusUpdate) error {
	return c.post(ctx, c.baseURL+"/api/queue/status", u)
}

func (c *QueueClient) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling queue payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("queue service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("queue service returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Queue service notified", zap.String("url", url))
	return nil
}
