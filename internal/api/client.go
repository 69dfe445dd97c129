package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bilancio/internal/core"
)

// Client talks to the finance backend. All failures surface as *Error so
// callers can classify them without inspecting message text.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLimits fetches the current limit set snapshot for a budget.
func (c *Client) GetLimits(ctx context.Context, budgetID string) (core.LimitSet, error) {
	var snapshot core.LimitSet
	err := c.do(ctx, http.MethodGet, "/budgets/"+url.PathEscape(budgetID)+"/limits", nil, &snapshot)
	if err != nil {
		return core.LimitSet{}, fmt.Errorf("get limits for budget %s: %w", budgetID, err)
	}
	return snapshot, nil
}

// TriggerLimitRefresh asks the backend to recompute recommended limits.
// Only acceptance of the request is awaited; completion is observed by
// polling GetLimits.
func (c *Client) TriggerLimitRefresh(ctx context.Context, budgetID string) error {
	err := c.do(ctx, http.MethodPost, "/budgets/"+url.PathEscape(budgetID)+"/limits/refresh", nil, nil)
	if err != nil {
		return fmt.Errorf("trigger limit refresh for budget %s: %w", budgetID, err)
	}
	return nil
}

// ListTransactions fetches one page of a list view.
func (c *Client) ListTransactions(ctx context.Context, limit, offset int, params url.Values) ([]core.Transaction, error) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var items []core.Transaction
	err := c.do(ctx, http.MethodGet, "/transactions?"+q.Encode(), nil, &items)
	if err != nil {
		return nil, fmt.Errorf("list transactions (limit=%d, offset=%d): %w", limit, offset, err)
	}
	return items, nil
}

// UpdateLimit mutates one category limit and returns the updated snapshot.
func (c *Client) UpdateLimit(ctx context.Context, budgetID string, limit core.CategoryLimit) (core.LimitSet, error) {
	var snapshot core.LimitSet
	err := c.do(ctx, http.MethodPatch, "/budgets/"+url.PathEscape(budgetID)+"/limits/"+url.PathEscape(limit.ID), limit, &snapshot)
	if err != nil {
		return core.LimitSet{}, fmt.Errorf("update limit %s: %w", limit.ID, err)
	}
	return snapshot, nil
}

// Balance returns the user's virtual-currency balance in job-cost units.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/wallet/balance", nil, &out); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Balance, nil
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindNetwork, Message: "encode request body", cause: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindNetwork, cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classify(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindNetwork, Message: "decode response body", cause: err}
		}
	}
	return nil
}

// classify converts a non-2xx response into a typed error. The body is read
// best-effort; a missing or malformed envelope still yields a usable error.
func classify(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope errorBody
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Debug("Unparseable API error body", "status", resp.StatusCode, "bytes", len(raw))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Code: envelope.Code, Message: envelope.Message}
	case http.StatusForbidden:
		return &Error{Kind: KindPermission, Code: envelope.Code, Message: envelope.Message}
	}
	if envelope.Code != "" {
		return &Error{Kind: KindDomain, Code: envelope.Code, Message: envelope.Message}
	}
	return &Error{
		Kind:    KindNetwork,
		Message: envelope.Message,
		cause:   fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
}
