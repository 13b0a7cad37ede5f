// Package backend is the HTTP client for the Fishook backend API: message
// history, read receipts, billing, plans, widget settings and analytics. The
// backend itself is an external collaborator; this package only consumes it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fishook/fishook/internal/chat"
)

// ErrorResponse is the backend's error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}

// APIError carries the backend's status code and message so callers can relay
// a displayable reason.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Status, e.Message)
}

// Client talks to the backend REST surface. Every request carries the
// obfuscated bearer credential and the shop routing header, mirroring the
// realtime channel's authentication scheme.
type Client struct {
	baseURL     string
	secret      []byte
	credentials chat.CredentialSource
	http        *http.Client
	logger      *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(baseURL string, secret []byte, credentials chat.CredentialSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		secret:      secret,
		credentials: credentials,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForShop returns a shop-scoped view implementing the per-session call
// surface (history fetch and read receipts).
func (c *Client) ForShop(shop string) *ShopClient {
	return &ShopClient{c: c, shop: shop}
}

func (c *Client) do(ctx context.Context, shop, method, path string, body, out interface{}) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	token, err := c.credentials.AccessToken(ctx, shop)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}
	credential, err := chat.ObfuscateToken(token, c.secret)
	if err != nil {
		return fmt.Errorf("obfuscate token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("X-Fishook-Shop", shop)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr ErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&apiErr); err != nil {
			apiErr.Message = res.Status
		}
		return &APIError{Status: res.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Rooms lists the shop's chat rooms, most recently active first.
func (c *Client) Rooms(ctx context.Context, shop string) ([]chat.Room, error) {
	var rooms []chat.Room
	if err := c.do(ctx, shop, http.MethodGet, "/v1/chat/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// MessageHistory fetches the most-recent-N messages of a room. The result
// carries no ordering guarantee; the merger sorts.
func (c *Client) MessageHistory(ctx context.Context, shop, roomID string, limit int) ([]chat.Message, error) {
	var msgs []chat.Message
	path := fmt.Sprintf("/v1/chat/rooms/%s/messages?limit=%d", roomID, limit)
	if err := c.do(ctx, shop, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead acknowledges that the merchant has viewed the room's messages.
func (c *Client) MarkRead(ctx context.Context, shop, roomID string) error {
	path := fmt.Sprintf("/v1/chat/rooms/%s/read", roomID)
	return c.do(ctx, shop, http.MethodPost, path, nil, nil)
}

// Plans lists the available subscription plans for a shop.
func (c *Client) Plans(ctx context.Context, shop string) ([]Plan, error) {
	var plans []Plan
	if err := c.do(ctx, shop, http.MethodGet, "/v1/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// SelectPlan switches the shop onto a plan.
func (c *Client) SelectPlan(ctx context.Context, shop, planID string) error {
	body := map[string]string{"plan_id": planID}
	return c.do(ctx, shop, http.MethodPost, "/v1/plans/select", body, nil)
}

// TopUp adds message credits. The idempotency key lets the backend
// deduplicate a retried charge.
func (c *Client) TopUp(ctx context.Context, shop string, amount float64, idempotencyKey string) (*TopUpResult, error) {
	body := map[string]interface{}{"amount": amount, "idempotency_key": idempotencyKey}
	var result TopUpResult
	if err := c.do(ctx, shop, http.MethodPost, "/v1/billing/topup", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChangePassword relays a password change. Nothing is stored locally.
func (c *Client) ChangePassword(ctx context.Context, shop, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	return c.do(ctx, shop, http.MethodPost, "/v1/account/password", body, nil)
}

// WidgetSettings reads the storefront widget configuration.
func (c *Client) WidgetSettings(ctx context.Context, shop string) (*WidgetSettings, error) {
	var settings WidgetSettings
	if err := c.do(ctx, shop, http.MethodGet, "/v1/widget", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateWidgetSettings writes the storefront widget configuration.
func (c *Client) UpdateWidgetSettings(ctx context.Context, shop string, settings WidgetSettings) error {
	return c.do(ctx, shop, http.MethodPut, "/v1/widget", settings, nil)
}

// Dashboard fetches the analytics snapshot for the merchant dashboards.
func (c *Client) Dashboard(ctx context.Context, shop string) (*Dashboard, error) {
	var d Dashboard
	if err := c.do(ctx, shop, http.MethodGet, "/v1/analytics/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ShopClient binds a Client to one shop. It implements chat.SessionBackend.
type ShopClient struct {
	c    *Client
	shop string
}

func (s *ShopClient) MessageHistory(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	return s.c.MessageHistory(ctx, s.shop, roomID, limit)
}

func (s *ShopClient) MarkRead(ctx context.Context, roomID string) error {
	return s.c.MarkRead(ctx, s.shop, roomID)
}
