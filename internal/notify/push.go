package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/models"
)

// PushClient broadcasts notifications through a OneSignal-compatible REST endpoint.
type PushClient struct {
	url    string
	appID  string
	apiKey string
	client *http.Client
}

func NewPushClient(cfg config.PushConfig, client *http.Client) *PushClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PushClient{url: cfg.URL, appID: cfg.AppID, apiKey: cfg.APIKey, client: client}
}

type pushRequest struct {
	AppID            string            `json:"app_id"`
	IncludedSegments []string          `json:"included_segments"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             json.RawMessage   `json:"data"`
}

type pushResponse struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

func (c *PushClient) Deliver(ctx context.Context, n models.Notification) (models.Delivery, error) {
	data := n.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	body, err := json.Marshal(pushRequest{
		AppID:            c.appID,
		IncludedSegments: []string{"All"},
		Headings:         map[string]string{"en": n.Title, "ar": n.Title},
		Contents:         map[string]string{"en": n.Message, "ar": n.Message},
		Data:             data,
	})
	if err != nil {
		return models.Delivery{}, fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return models.Delivery{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Delivery{}, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Delivery{}, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Delivery{}, fmt.Errorf("push: http %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out pushResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Delivery{}, fmt.Errorf("decode push response: %w", err)
	}
	return models.Delivery{Sent: out.Recipients, Success: out.Recipients}, nil
}
