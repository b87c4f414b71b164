package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/api"
	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/fluxbase-eu/filterkit/internal/testutil"
)

// newTestServer serves the sample dataset with one derived definition per model.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	fx := testutil.NewFixture()
	catalog, err := api.NewStaticCatalog(fx.Registry, fx.Store, filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second, BodyLimit: 1 << 20},
		Filters: config.FiltersConfig{PageSize: 10, MaxPageSize: 50, Timezone: "UTC"},
	}
	srv := httptest.NewServer(adaptor.FiberApp(api.NewServer(cfg, catalog).App()))
	t.Cleanup(srv.Close)
	return srv
}

func usernames(records []map[string]interface{}) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["username"].(string))
	}
	return out
}

func TestListDefinitions(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)

	defs, err := c.ListDefinitions(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "user")
	assert.Contains(t, names, "book")
}

func TestEvaluate(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	t.Run("choice filter", func(t *testing.T) {
		result, err := c.Evaluate(ctx, "user", url.Values{"status": {"1"}}, Page{})
		require.NoError(t, err)
		assert.True(t, result.Bound)
		assert.Equal(t, 1, result.Count)
		assert.Equal(t, []string{"alex"}, usernames(result.Results))
	})

	t.Run("unbound", func(t *testing.T) {
		result, err := c.Evaluate(ctx, "user", nil, Page{})
		require.NoError(t, err)
		assert.False(t, result.Bound)
		assert.Equal(t, 3, result.Count)
		assert.NotEmpty(t, result.Form)
	})

	t.Run("paged and ordered", func(t *testing.T) {
		result, err := c.Evaluate(ctx, "user", url.Values{"o": {"username"}}, Page{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Count)
		assert.Equal(t, 1, result.Offset)
		assert.Equal(t, 1, result.Limit)
		assert.Equal(t, []string{"alex"}, usernames(result.Results))
	})

	t.Run("invalid value is reported and ignored", func(t *testing.T) {
		result, err := c.Evaluate(ctx, "user", url.Values{"status": {"bogus"}}, Page{})
		require.NoError(t, err)
		assert.Contains(t, result.Errors, "status")
		assert.Equal(t, 3, result.Count)
	})

	t.Run("unknown definition", func(t *testing.T) {
		_, err := c.Evaluate(ctx, "nope", nil, Page{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "DEFINITION_NOT_FOUND", apiErr.Code)
		assert.NotEmpty(t, apiErr.RequestID)
	})
}

func TestRenderForm(t *testing.T) {
	srv := newTestServer(t)
	html, err := NewClient(srv.URL).RenderForm(context.Background(), "user", url.Values{"username": {"alex"}})
	require.NoError(t, err)
	assert.Contains(t, html, `<form method="get"`)
	assert.Contains(t, html, `value="alex"`)
}

func TestRefreshSchemaOnStaticServer(t *testing.T) {
	srv := newTestServer(t)
	_, err := NewClient(srv.URL).RefreshSchema(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "STATIC_CATALOG", apiErr.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, err := NewClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status["status"])
}

func TestHealthDegradedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", status["status"])
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      APIError
		expected string
	}{
		{name: "message wins", err: APIError{Message: "m", Error_: "e"}, expected: "m"},
		{name: "error text", err: APIError{Error_: "e", Code: "C"}, expected: "e (C)"},
		{name: "status only", err: APIError{StatusCode: 502}, expected: "API error with status 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListDefinitions(context.Background())
	require.Error(t, err)
	assert.Equal(t, "upstream exploded", err.Error())
}

func TestDebugOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "filterctl/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(srv.URL+"/", WithDebug(true), WithTimeout(time.Second))
	c.DebugWriter = &buf

	defs, err := c.ListDefinitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.Contains(t, buf.String(), "DEBUG: GET "+srv.URL+"/api/v1/filters")
}
