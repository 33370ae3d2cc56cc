// Package client talks to the CoffeeNet API on behalf of one viewer session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coffeenet/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the key that lets the server recognise a retried order.
const IdempotencyHeader = "Idempotency-Key"

// createAttempts bounds transport retries of order creation.
const createAttempts = 3

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d (%s)", e.Status, e.Code)
	}
	return e.Message
}

// Unwrap maps the server's error code back to the shared sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_transition":
		return models.ErrInvalidTransition
	case "stock_conflict":
		return models.ErrStockConflict
	case "not_found":
		return models.ErrNotFound
	case "unauthorized":
		return models.ErrUnauthorized
	case "invalid_request":
		return models.ErrInvalidInput
	}
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.ErrUnauthorized
	case http.StatusNotFound:
		return models.ErrNotFound
	}
	return nil
}

// Client is an authenticated API client. It is owned by one session and is
// not meant to be shared between identities.
type Client struct {
	httpClient *http.Client
	BaseURL    string
	token      string
	newKey     func() string
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		newKey:     func() string { return uuid.NewString() },
	}
}

// Token returns the session token, empty before Login.
func (c *Client) Token() string { return c.token }

// SetToken installs a token obtained elsewhere.
func (c *Client) SetToken(token string) { c.token = token }

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (models.Token, error) {
	var tok models.Token
	creds := models.Credentials{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/users/token", creds, nil, &tok); err != nil {
		return models.Token{}, fmt.Errorf("login: %w", err)
	}
	c.token = tok.AccessToken
	return tok, nil
}

// Me returns the identity behind the current token.
func (c *Client) Me(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &id)
	return id, err
}

// Chat asks the assistant to interpret text against the current cart.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (models.ChatReply, error) {
	var reply models.ChatReply
	if err := c.do(ctx, http.MethodPost, "/orders/chat", req, nil, &reply); err != nil {
		return models.ChatReply{}, fmt.Errorf("chat: %w", err)
	}
	return reply, nil
}

// CreateOrder places an order. Transport failures are retried with the same
// idempotency key, so the server creates the order at most once.
func (c *Client) CreateOrder(ctx context.Context, lines []models.LineRequest) (models.Order, error) {
	header := http.Header{}
	header.Set(IdempotencyHeader, c.newKey())
	body := models.CreateOrderRequest{Items: lines}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		var order models.Order
		err = c.do(ctx, http.MethodPost, "/orders/confirm", body, header, &order)
		if err == nil {
			return order, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) || ctx.Err() != nil {
			break
		}
	}
	return models.Order{}, fmt.Errorf("create order: %w", err)
}

// ActiveOrders lists orders in received or in_production.
func (c *Client) ActiveOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := c.do(ctx, http.MethodGet, "/orders/active", nil, nil, &orders)
	return orders, err
}

// ChangeStatus asks the server to move an order to target.
func (c *Client) ChangeStatus(ctx context.Context, orderID uint, target models.OrderStatus) (models.Order, error) {
	var order models.Order
	body := models.StatusChangeRequest{Status: &target}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d/status", orderID), body, nil, &order); err != nil {
		return models.Order{}, fmt.Errorf("change status of order %d: %w", orderID, err)
	}
	return order, nil
}

// Products lists the whole catalog, including products out of stock.
func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := c.do(ctx, http.MethodGet, "/products", nil, nil, &products)
	return products, err
}

// SetPrice changes the regular price of a product.
func (c *Client) SetPrice(ctx context.Context, productID uint, price decimal.Decimal) (models.Product, error) {
	var p models.Product
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d/price", productID), models.PriceUpdate{Price: price}, nil, &p)
	return p, err
}

// SetPromotion turns a promotion on with price, or off when price is nil.
func (c *Client) SetPromotion(ctx context.Context, productID uint, on bool, price *decimal.Decimal) (models.Product, error) {
	var p models.Product
	body := models.PromotionUpdate{OnPromotion: on, PromoPrice: price}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d/promotion", productID), body, nil, &p)
	return p, err
}

// PushURL is the websocket address for the current token.
func (c *Client) PushURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(c.token)
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
