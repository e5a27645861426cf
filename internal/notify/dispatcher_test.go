package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/domain"
	"intentmesh/internal/notify"
)

func TestDeliverPostsEvent(t *testing.T) {
	var (
		got     domain.Event
		headers http.Header
		method  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sub := domain.HubSubscription{
		ID:       "s1",
		Callback: srv.URL + "/listener",
		Headers:  map[string]string{"Authorization": "Bearer abc", "X-Intentmesh-Event": "overridden"},
	}
	evt := domain.Event{
		EventID:   "e1",
		EventType: domain.EventReportCreate,
		EventTime: "2026-10-16T10:00:00Z",
		Event:     map[string]any{"intentReport": map[string]any{"id": "r1"}},
	}
	require.NoError(t, notify.New(time.Second).Deliver(context.Background(), sub, evt))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "e1", headers.Get(notify.HeaderDelivery))
	assert.Equal(t, "overridden", headers.Get(notify.HeaderEvent))
	assert.Equal(t, "Bearer abc", headers.Get("Authorization"))
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, domain.EventReportCreate, got.EventType)
}

func TestDeliverFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "listener exploded", http.StatusBadGateway)
		}))
		defer srv.Close()
		err := notify.New(time.Second).Deliver(context.Background(),
			domain.HubSubscription{Callback: srv.URL}, domain.Event{EventID: "e1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 502")
		assert.Contains(t, err.Error(), "listener exploded")
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		err := notify.New(100*time.Millisecond).Deliver(context.Background(),
			domain.HubSubscription{Callback: srv.URL}, domain.Event{EventID: "e1"})
		assert.Error(t, err)
	})

	t.Run("bad callback", func(t *testing.T) {
		err := notify.New(time.Second).Deliver(context.Background(),
			domain.HubSubscription{Callback: "://nope"}, domain.Event{EventID: "e1"})
		assert.Error(t, err)
	})
}
