package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/rs/zerolog"
)

// Client talks to the hosted database's REST endpoint (PostgREST dialect).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	realtime   domain.Subscriber
	logger     *zerolog.Logger
}

// NewClient builds a REST client. Subscriptions go through the realtime
// websocket at cfg.RealtimeURL, derived from cfg.URL when empty.
func NewClient(cfg config.RemoteConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.URL, "/")

	rtURL := cfg.RealtimeURL
	if rtURL == "" {
		rtURL = RealtimeURLFor(base)
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		realtime:   NewRealtime(rtURL, cfg.APIKey, cfg.Heartbeat, logger),
		logger:     logger,
	}
}

// RealtimeURLFor maps https://host to wss://host/realtime/v1/websocket.
func RealtimeURLFor(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/realtime/v1/websocket"
}

func (c *Client) Select(ctx context.Context, table string, q domain.Query, out any) error {
	params := url.Values{}
	params.Set("select", "*")
	for _, f := range q.Filters {
		params.Add(f.Column, "eq."+f.Value)
	}
	if !q.Unordered {
		params.Set("order", "created_at.desc")
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	body, err := c.do(ctx, "select", table, http.MethodGet, params, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Remote("select", table, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, table string, record any, out any) error {
	body, err := c.do(ctx, "insert", table, http.MethodPost, nil, record)
	if err != nil {
		return err
	}
	return decodeRepresentation(body, "insert", table, "", out)
}

func (c *Client) Update(ctx context.Context, table, id string, patch any, out any) error {
	params := url.Values{}
	params.Set("id", "eq."+id)
	body, err := c.do(ctx, "update", table, http.MethodPatch, params, patch)
	if err != nil {
		return err
	}
	return decodeRepresentation(body, "update", table, id, out)
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	params := url.Values{}
	params.Set("id", "eq."+id)
	body, err := c.do(ctx, "delete", table, http.MethodDelete, params, nil)
	if err != nil {
		return err
	}
	return decodeRepresentation(body, "delete", table, id, nil)
}

func (c *Client) Subscribe(ctx context.Context, table string, handler domain.ChangeHandler) (domain.Subscription, error) {
	return c.realtime.Subscribe(ctx, table, handler)
}

func (c *Client) do(ctx context.Context, op, table, method string, params url.Values, payload any) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, domain.Remote(op, table, fmt.Errorf("encode: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, domain.Remote(op, table, err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Remote(op, table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Remote(op, table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Str("op", op).Str("table", table).Int("status", resp.StatusCode).Msg("remote request failed")
		return nil, &domain.RemoteError{Op: op, Table: table, Status: resp.StatusCode, Err: errors.New(errorMessage(body))}
	}
	return body, nil
}

func decodeRepresentation(body []byte, op, table, id string, out any) error {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return domain.Remote(op, table, fmt.Errorf("decode: %w", err))
	}
	if len(rows) == 0 {
		if id != "" {
			return domain.NotFound(table, id)
		}
		return domain.Remote(op, table, errors.New("empty representation"))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return domain.Remote(op, table, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		if payload.Code != "" {
			return payload.Code + ": " + payload.Message
		}
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
