package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scan-bot/internal/models"
)

const testKey = "sk_test_0123456789abcdef"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 2}, nil)
	require.NoError(t, err)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestScanText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/scan", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req scanTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, scanTextRequest{Prompt: "leads", Text: "Acme Corp"}, req)

		writeJSON(w, http.StatusOK, map[string]any{
			"endpoint": "/leads",
			"item":     map[string]any{"company": "Acme Corp"},
		})
	}))

	result, err := c.ScanText(context.Background(), testKey, "leads", "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "/leads", result.Endpoint)
	assert.Equal(t, "Acme Corp", result.Item["company"])
}

func TestScanIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream down"})
	}))

	_, err := c.ScanText(context.Background(), testKey, "leads", "Acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Equal(t, int32(1), calls.Load())
}

func TestScanFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scan/file", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "invoices", r.FormValue("prompt"))
		assert.Equal(t, "true", r.FormValue("vision"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "march.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF", string(data))

		writeJSON(w, http.StatusCreated, map[string]any{"endpoint": "/invoices", "item": map[string]any{"total": 12.5}})
	}))

	result, err := c.ScanFile(context.Background(), testKey, "invoices", []byte("%PDF"), "march.pdf", "application/pdf", models.ScanOptions{Vision: true})
	require.NoError(t, err)
	assert.Equal(t, "/invoices", result.Endpoint)
}

func TestListEndpointsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"endpoints": []map[string]any{{"path": "/leads", "count": 3}, {"path": "/invoices"}},
		})
	}))

	endpoints, err := c.ListEndpoints(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, []models.EndpointRef{{Path: "/leads", Count: 3}, {Path: "/invoices"}}, endpoints)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListEndpointsGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListEndpoints(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such endpoint"})
	}))

	_, err := c.GetEndpointData(context.Background(), testKey, "/missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no such endpoint", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetEndpointDataPath(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/leads/acme", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"name": "Jane"}},
			"total": 41,
		})
	}))

	data, err := c.GetEndpointData(context.Background(), testKey, "/leads/../leads/acme")
	require.NoError(t, err)
	assert.Equal(t, 41, data.TotalCount)
	assert.Len(t, data.Items, 1)
}

func TestGetEndpointDataCannotEscapePrefix(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/admin", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "total": 0})
	}))

	_, err := c.GetEndpointData(context.Background(), testKey, "/../../admin")
	require.NoError(t, err)
}

func TestGetUsageStats(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/usage", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"tier": "pro", "used": 120, "limit": 1000})
	}))

	stats, err := c.GetUsageStats(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, &models.UsageStats{Tier: "pro", Used: 120, Limit: 1000}, stats)
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "accepted", status: http.StatusOK, want: true},
		{name: "unauthorized", status: http.StatusUnauthorized, want: false},
		{name: "forbidden", status: http.StatusForbidden, want: false},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{"tier": "free"})
			}))

			ok, err := c.ValidateCredential(context.Background(), testKey)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Config{BaseURL: srv.URL, MaxRetries: 1}, nil)
	require.NoError(t, err)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	_, err = c.ListEndpoints(context.Background(), testKey)
	assert.Error(t, err)
}
