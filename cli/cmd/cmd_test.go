package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
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

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		// Flags keep their values between executions
		outputFmt, noHeaders, quiet, useSample, serverURL = "table", false, false, false, ""
		evalOffset, evalLimit = 0, 0
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	fx := testutil.NewFixture()
	catalog, err := api.NewStaticCatalog(fx.Registry, fx.Store, filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg := &config.Config{
		Server:  config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
		Filters: config.FiltersConfig{PageSize: 10, MaxPageSize: 50, Timezone: "UTC"},
	}
	srv := httptest.NewServer(adaptor.FiberApp(api.NewServer(cfg, catalog).App()))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseAssignments(t *testing.T) {
	data, err := parseAssignments(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = parseAssignments([]string{"status=0", "status=1", "username=", "o=-id"})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"status": {"0", "1"}, "username": {""}, "o": {"-id"}}, data)

	_, err = parseAssignments([]string{"status"})
	assert.ErrorContains(t, err, "expected KEY=VALUE")

	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

func TestFiltersEvalJSON(t *testing.T) {
	srv := newTestServer(t)
	out, err := run(t, "filters", "eval", "user", "status=0", "o=-username", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)

	var result struct {
		Count   int                      `json:"count"`
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "jacob", result.Results[0]["username"])
	assert.Equal(t, "aaron", result.Results[1]["username"])
}

func TestFiltersEvalTableWarnsOnInvalidInput(t *testing.T) {
	srv := newTestServer(t)
	out, err := run(t, "filters", "eval", "user", "status=bogus", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Warning: status ignored")
	assert.Contains(t, out, "3 of 3 user")
}

func TestFiltersList(t *testing.T) {
	srv := newTestServer(t)
	out, err := run(t, "filters", "list", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "favorite_books")
}

func TestDefinitionsValidateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`definitions:
  - name: users
    model: user
    fields: [username, status]
`), 0o600))

	out, err := run(t, "definitions", "validate", path, "--sample")
	require.NoError(t, err)
	assert.Contains(t, out, "1 definitions OK")
}

func TestDefinitionsValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`definitions:
  - name: users
    model: nobody
`), 0o600))

	_, err := run(t, "definitions", "validate", path, "--sample")
	assert.ErrorContains(t, err, `unknown model "nobody"`)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "filterctl dev")
}
