package intentsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intentsdk "intentmesh/sdk/go"
)

func TestListIntentsReadsTotalCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/intent", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("offset"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("X-Total-Count", "7")
		_ = json.NewEncoder(w).Encode([]intentsdk.Intent{{ID: "c", Name: "c"}})
	}))
	defer srv.Close()

	c := intentsdk.New(srv.URL + "/api/")
	c.BearerToken = "tok"
	items, total, err := c.ListIntents(context.Background(), intentsdk.Page{Offset: 2, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","reason":"intent 'x' not found"}`))
	}))
	defer srv.Close()

	_, err := intentsdk.New(srv.URL).GetIntent(context.Background(), "x")
	var apiErr *intentsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "intent 'x' not found", apiErr.Reason)
}

func TestDeleteAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/intent/a%2Fb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, intentsdk.New(srv.URL).DeleteIntent(context.Background(), "a/b"))
}
