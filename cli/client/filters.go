package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Definition summarizes one filter definition served by the API
type Definition struct {
	Name     string   `json:"name"`
	Model    string   `json:"model,omitempty"`
	Filters  []string `json:"filters"`
	Ordering []string `json:"ordering,omitempty"`
}

// Choice is one option of a form field
type Choice struct {
	Value interface{} `json:"value"`
	Label string      `json:"label"`
}

// Field describes one form field of an evaluated definition
type Field struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Widget   string      `json:"widget"`
	Required bool        `json:"required"`
	Value    interface{} `json:"value,omitempty"`
	Choices  []Choice    `json:"choices,omitempty"`
	Lookups  []Choice    `json:"lookups,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Result is the outcome of evaluating a definition against query data
type Result struct {
	Definition string                   `json:"definition"`
	Model      string                   `json:"model,omitempty"`
	Bound      bool                     `json:"bound"`
	Form       []Field                  `json:"form"`
	Errors     map[string]string        `json:"errors,omitempty"`
	Count      int                      `json:"count"`
	Offset     int                      `json:"offset"`
	Limit      int                      `json:"limit"`
	Results    []map[string]interface{} `json:"results"`
}

// Page restricts an evaluation to a window of results. Zero values leave
// the server defaults in place.
type Page struct {
	Offset int
	Limit  int
}

// ListDefinitions returns every definition the server knows
func (c *Client) ListDefinitions(ctx context.Context) ([]Definition, error) {
	var defs []Definition
	if err := c.DoGet(ctx, "/api/v1/filters", nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Evaluate applies data to the named definition. A nil data evaluates the
// definition unbound, so initial values apply.
func (c *Client) Evaluate(ctx context.Context, name string, data url.Values, page Page) (*Result, error) {
	query := url.Values{}
	for k, vs := range data {
		query[k] = append([]string(nil), vs...)
	}
	if page.Offset > 0 {
		query.Set("_offset", strconv.Itoa(page.Offset))
	}
	if page.Limit > 0 {
		query.Set("_limit", strconv.Itoa(page.Limit))
	}

	var result Result
	if err := c.DoGet(ctx, "/api/v1/filters/"+url.PathEscape(name), query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RenderForm returns the HTML form of the named definition
func (c *Client) RenderForm(ctx context.Context, name string, data url.Values) (string, error) {
	resp, err := c.Get(ctx, "/api/v1/filters/"+url.PathEscape(name)+"/form", data)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", parseErrorBody(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read form: %w", err)
	}
	return string(body), nil
}

// RefreshSchema asks the server to inspect the database again and returns
// the definitions built from the new schema.
func (c *Client) RefreshSchema(ctx context.Context) ([]string, error) {
	var result struct {
		Definitions []string `json:"definitions"`
	}
	if err := c.DoPost(ctx, "/api/v1/admin/schema/refresh", nil, &result); err != nil {
		return nil, err
	}
	return result.Definitions, nil
}

// Health reports the server status; a degraded server is not an error.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.Get(ctx, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusServiceUnavailable {
		resp.StatusCode = http.StatusOK
	}
	var status map[string]interface{}
	if err := decodeBody(resp, &status); err != nil {
		return nil, err
	}
	return status, nil
}
