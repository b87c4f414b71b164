package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	s, clock := newTestStore(t)

	app := fiber.New()
	app.Use(Middleware(NewLimiter(s, 2, time.Minute), MiddlewareConfig{
		KeyFunc: func(c *fiber.Ctx) string { return c.Get("X-Client") },
	}))
	app.Get("/filters", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(client string) *http.Response {
		req := httptest.NewRequest("GET", "/filters", nil)
		req.Header.Set("X-Client", client)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	first := do("alice")
	assert.Equal(t, fiber.StatusOK, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10), first.Header.Get("X-RateLimit-Reset"))

	assert.Equal(t, fiber.StatusOK, do("alice").StatusCode)

	rejected := do("alice")
	assert.Equal(t, fiber.StatusTooManyRequests, rejected.StatusCode)
	assert.Equal(t, "0", rejected.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rejected.Header.Get(fiber.HeaderRetryAfter))

	assert.Equal(t, fiber.StatusOK, do("bob").StatusCode, "other clients keep their budget")
}

func TestMiddleware_CustomRejection(t *testing.T) {
	s, _ := newTestStore(t)

	app := fiber.New()
	app.Use(Middleware(NewLimiter(s, 0, time.Minute), MiddlewareConfig{
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"code": "RATE_LIMITED"})
		},
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))
}

func TestMiddleware_FailsOpen(t *testing.T) {
	var storeErr error

	app := fiber.New()
	app.Use(Middleware(NewLimiter(failingStore{}, 1, time.Minute), MiddlewareConfig{
		OnStoreError: func(c *fiber.Ctx, err error) { storeErr = err },
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.EqualError(t, storeErr, "store down")
}
