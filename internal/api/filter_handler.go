package api

import (
	"context"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/filtertool"
	"github.com/fluxbase-eu/filterkit/internal/form"
	"github.com/fluxbase-eu/filterkit/internal/middleware"
	"github.com/fluxbase-eu/filterkit/internal/observability"
)

// Query parameters the list view reads itself. Everything else is
// submitted filter data.
const (
	offsetParam = "_offset"
	limitParam  = "_limit"
)

// FilterHandler serves filtered list views over a catalog of definitions
type FilterHandler struct {
	catalog     Catalog
	metrics     *observability.Metrics
	location    *time.Location
	now         func() time.Time
	pageSize    int
	maxPageSize int
}

// NewFilterHandler creates a handler paging results pageSize at a time
func NewFilterHandler(catalog Catalog, metrics *observability.Metrics, location *time.Location, pageSize, maxPageSize int) *FilterHandler {
	return &FilterHandler{
		catalog:     catalog,
		metrics:     metrics,
		location:    location,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
	}
}

// DefinitionSummary describes one served definition
type DefinitionSummary struct {
	Name     string   `json:"name"`
	Model    string   `json:"model,omitempty"`
	Filters  []string `json:"filters"`
	Ordering []string `json:"ordering,omitempty"`
}

// FilterResponse is one evaluated page of a filtered list
type FilterResponse struct {
	Definition string                  `json:"definition"`
	Model      string                  `json:"model,omitempty"`
	Bound      bool                    `json:"bound"`
	Form       []form.FieldDescription `json:"form"`
	Errors     map[string]string       `json:"errors,omitempty"`
	Count      int                     `json:"count"`
	Offset     int                     `json:"offset"`
	Limit      int                     `json:"limit"`
	Results    []collection.Record     `json:"results"`
}

// RegisterRoutes mounts the list view under router
func (h *FilterHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/filters", h.ListDefinitions)
	router.Get("/filters/:name", h.Evaluate)
	router.Get("/filters/:name/form", h.RenderForm)
}

// ListDefinitions lists every served definition and its filter keys
func (h *FilterHandler) ListDefinitions(c *fiber.Ctx) error {
	set, err := h.catalog.Definitions(middleware.TraceContext(c))
	if err != nil {
		return h.handleEvaluationError(c, err, "")
	}

	out := make([]DefinitionSummary, 0, set.Len())
	for _, name := range set.Names() {
		def, _ := set.Get(name)
		summary := DefinitionSummary{Name: name, Filters: def.Keys()}
		if m := def.Model(); m != nil {
			summary.Model = m.Name
		}
		summary.Ordering = def.OrderingKeys()
		out = append(out, summary)
	}
	return c.JSON(out)
}

// Evaluate applies the submitted query parameters and returns the form
// description with one page of results.
func (h *FilterHandler) Evaluate(c *fiber.Ctx) error {
	ctx := middleware.TraceContext(c)
	name := c.Params("name")
	c.Locals(middleware.DefinitionLocal, name)

	def, err := h.definition(ctx, name)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}
	if def == nil {
		return SendErrorWithCode(c, fiber.StatusNotFound, "Filter definition not found", "DEFINITION_NOT_FOUND")
	}

	data, offset, limit, err := h.parseQuery(c)
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION")
	}

	tool := h.bind(def, data)
	count, err := tool.Count(ctx)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}
	results, err := tool.Page(ctx, offset, limit)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}
	f, err := tool.Form(ctx)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}

	resp := FilterResponse{
		Definition: def.Name(),
		Bound:      tool.IsBound(),
		Form:       f.Describe(),
		Errors:     f.Errors(),
		Count:      count,
		Offset:     offset,
		Limit:      limit,
		Results:    results,
	}
	if m := def.Model(); m != nil {
		resp.Model = m.Name
	}
	if resp.Results == nil {
		resp.Results = []collection.Record{}
	}
	return c.JSON(resp)
}

// RenderForm renders the definition's form as an HTML table inside a GET
// form that submits back to Evaluate.
func (h *FilterHandler) RenderForm(c *fiber.Ctx) error {
	ctx := middleware.TraceContext(c)
	name := c.Params("name")
	c.Locals(middleware.DefinitionLocal, name)

	def, err := h.definition(ctx, name)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}
	if def == nil {
		return SendErrorWithCode(c, fiber.StatusNotFound, "Filter definition not found", "DEFINITION_NOT_FOUND")
	}

	data, _, _, err := h.parseQuery(c)
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION")
	}
	f, err := h.bind(def, data).Form(ctx)
	if err != nil {
		return h.handleEvaluationError(c, err, name)
	}

	action := strings.TrimSuffix(c.Path(), "/form")
	var b strings.Builder
	b.WriteString(`<form method="get" action="` + html.EscapeString(action) + `">` + "\n")
	b.WriteString("<table>\n")
	b.WriteString(f.AsTable())
	b.WriteString("\n</table>\n")
	b.WriteString(`<input type="submit" value="Filter" />` + "\n")
	b.WriteString("</form>\n")

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(b.String())
}

// definition returns the named definition, or nil when there is none.
func (h *FilterHandler) definition(ctx context.Context, name string) (*filtertool.Definition, error) {
	set, err := h.catalog.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := set.Get(name)
	if !ok {
		return nil, nil
	}
	return def, nil
}

func (h *FilterHandler) bind(def *filtertool.Definition, data url.Values) *filtertool.Tool {
	opts := []filtertool.Option{
		filtertool.WithData(data),
		filtertool.WithMetrics(h.metrics),
	}
	if h.location != nil {
		opts = append(opts, filtertool.WithLocation(h.location))
	}
	if h.now != nil {
		opts = append(opts, filtertool.WithClock(h.now))
	}
	return def.Bind(h.catalog.Source(), opts...)
}

// parseQuery splits the query string into filter data and paging. A
// request without filter data leaves the tool unbound, so initial values
// apply.
func (h *FilterHandler) parseQuery(c *fiber.Ctx) (url.Values, int, int, error) {
	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		values = url.Values{}
	}

	offset, limit := 0, h.pageSize
	if raw := values.Get(offsetParam); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, 0, 0, fiber.NewError(fiber.StatusBadRequest, offsetParam+" must be a non-negative integer")
		}
	}
	if raw := values.Get(limitParam); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, 0, 0, fiber.NewError(fiber.StatusBadRequest, limitParam+" must be a positive integer")
		}
	}
	if h.maxPageSize > 0 && limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	values.Del(offsetParam)
	values.Del(limitParam)

	if len(values) == 0 {
		return nil, offset, limit, nil
	}
	return values, offset, limit, nil
}
