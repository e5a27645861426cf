// Package notify delivers hub events to subscriber callbacks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intentmesh/internal/domain"
)

const (
	defaultTimeout = 5 * time.Second

	HeaderEvent    = "X-Intentmesh-Event"
	HeaderDelivery = "X-Intentmesh-Delivery"
)

// Dispatcher posts one event to one subscriber per call. It does not retry.
type Dispatcher struct {
	client *http.Client
}

// New creates a dispatcher whose deliveries give up after timeout.
func New(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{client: &http.Client{Timeout: timeout}}
}

// Deliver posts evt as JSON to the subscription callback. Subscription headers
// are applied last and may override the defaults. Any non-2xx answer is an
// error carrying the start of the response body.
func (d *Dispatcher) Deliver(ctx context.Context, sub domain.HubSubscription, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Callback, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(evt.EventType))
	req.Header.Set(HeaderDelivery, evt.EventID)
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
