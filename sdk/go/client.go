package intentsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"intentmesh/internal/domain"
)

// Client is a minimal intent management API client. BaseURL includes the
// API base path, e.g. http://edge7:8080/tmf-api/intentManagement/v5/.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type (
	Intent            = domain.Intent
	IntentExpression  = domain.IntentExpression
	IntentReport      = domain.IntentReport
	ObservationMetric = domain.ObservationMetric
	HubSubscription   = domain.HubSubscription
	Event             = domain.Event
)

// IntentPatch carries the fields to change. Nil fields are left alone.
type IntentPatch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Expression  *IntentExpression `json:"expression,omitempty"`
	Attributes  map[string]any    `json:"attributes,omitempty"`
}

// SubscriptionRequest registers a hub listener.
type SubscriptionRequest struct {
	Callback   string            `json:"callback"`
	EventTypes []string          `json:"eventTypes,omitempty"`
	Query      string            `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Route is a resolved routing key.
type Route struct {
	RoutingKey string `json:"routingKey"`
	Endpoint   string `json:"endpoint"`
}

// Health is the health endpoint answer.
type Health struct {
	Status string `json:"status"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Reason     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error: status=%d code=%s reason=%s", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Page bounds a list call. Zero values mean the server defaults.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) query(endpoint string) string {
	q := url.Values{}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

// CreateIntent submits an intent.
func (c *Client) CreateIntent(ctx context.Context, intent Intent) (Intent, error) {
	var resp Intent
	_, err := c.do(ctx, http.MethodPost, "intent", intent, &resp)
	return resp, err
}

// ListIntents returns one page of intents and the total count.
func (c *Client) ListIntents(ctx context.Context, page Page) ([]Intent, int, error) {
	var resp []Intent
	total, err := c.do(ctx, http.MethodGet, page.query("intent"), nil, &resp)
	return resp, total, err
}

func (c *Client) GetIntent(ctx context.Context, id string) (Intent, error) {
	var resp Intent
	_, err := c.do(ctx, http.MethodGet, "intent/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) PatchIntent(ctx context.Context, id string, patch IntentPatch) (Intent, error) {
	var resp Intent
	_, err := c.do(ctx, http.MethodPatch, "intent/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteIntent(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "intent/"+url.PathEscape(id), nil, nil)
	return err
}

// ListReports returns one page of the reports of an intent and the total count.
func (c *Client) ListReports(ctx context.Context, intentID string, page Page) ([]IntentReport, int, error) {
	var resp []IntentReport
	endpoint := fmt.Sprintf("intent/%s/intentReport", url.PathEscape(intentID))
	total, err := c.do(ctx, http.MethodGet, page.query(endpoint), nil, &resp)
	return resp, total, err
}

func (c *Client) GetReport(ctx context.Context, intentID, reportID string) (IntentReport, error) {
	var resp IntentReport
	endpoint := fmt.Sprintf("intent/%s/intentReport/%s", url.PathEscape(intentID), url.PathEscape(reportID))
	_, err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) DeleteReport(ctx context.Context, intentID, reportID string) error {
	endpoint := fmt.Sprintf("intent/%s/intentReport/%s", url.PathEscape(intentID), url.PathEscape(reportID))
	_, err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (HubSubscription, error) {
	var resp HubSubscription
	_, err := c.do(ctx, http.MethodPost, "hub", req, &resp)
	return resp, err
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]HubSubscription, error) {
	var resp []HubSubscription
	_, err := c.do(ctx, http.MethodGet, "hub", nil, &resp)
	return resp, err
}

func (c *Client) GetSubscription(ctx context.Context, id string) (HubSubscription, error) {
	var resp HubSubscription
	_, err := c.do(ctx, http.MethodGet, "hub/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "hub/"+url.PathEscape(id), nil, nil)
	return err
}

// ResolveRoute asks a router for the endpoint of a routing key.
func (c *Client) ResolveRoute(ctx context.Context, key string) (Route, error) {
	var resp Route
	_, err := c.do(ctx, http.MethodGet, "route/"+url.PathEscape(key), nil, &resp)
	return resp, err
}

// ForgetRoute drops a cached routing key on a router.
func (c *Client) ForgetRoute(ctx context.Context, key string) error {
	_, err := c.do(ctx, http.MethodDelete, "route/"+url.PathEscape(key), nil, nil)
	return err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	_, err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// do sends one request and decodes the answer into out. It returns the
// X-Total-Count header when present.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) (int, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Reason = envelope.Code, envelope.Reason
		}
		return 0, apiErr
	}
	total, _ := strconv.Atoi(resp.Header.Get("X-Total-Count"))
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return total, json.NewDecoder(resp.Body).Decode(out)
	}
	return total, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
