package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/filterkit/internal/database"
	"github.com/fluxbase-eu/filterkit/internal/filtertool"
	"github.com/fluxbase-eu/filterkit/internal/middleware"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SendError sends a standardized error response with request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		RequestID: middleware.RequestID(c),
	})
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: middleware.RequestID(c),
	})
}

// SendErrorWithDetails sends a detailed error response with request ID
func SendErrorWithDetails(c *fiber.Ctx, statusCode int, errMsg string, code string, message string, details interface{}) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: middleware.RequestID(c),
	})
}

// invalidator is implemented by catalogs that can drop a stale schema
type invalidator interface {
	Invalidate()
}

// handleEvaluationError maps a failed filter evaluation to a response.
// Input errors are the client's; everything else is logged as ours.
func (h *FilterHandler) handleEvaluationError(c *fiber.Ctx, err error, definition string) error {
	var cfgErr *filtertool.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		log.Error().Err(err).Str("definition", definition).Str("request_id", middleware.RequestID(c)).Msg("Filter definition is misconfigured")
		return SendErrorWithDetails(c, fiber.StatusInternalServerError, "Filter definition is misconfigured", "CONFIGURATION_ERROR", cfgErr.Reason, fiber.Map{"field": cfgErr.Field})
	case database.IsInvalidInput(err):
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Filter value was rejected by the database", "INVALID_INPUT")
	case database.IsQueryCanceled(err):
		return SendErrorWithCode(c, fiber.StatusGatewayTimeout, "Query timed out", "QUERY_CANCELED")
	case database.IsStaleSchema(err):
		if inv, ok := h.catalog.(invalidator); ok {
			inv.Invalidate()
		}
		log.Warn().Err(err).Str("definition", definition).Msg("Query hit a stale schema, invalidating")
		return SendErrorWithCode(c, fiber.StatusServiceUnavailable, "Schema changed, retry the request", "SCHEMA_CHANGED")
	}

	log.Error().
		Err(err).
		Str("definition", definition).
		Str("request_id", middleware.RequestID(c)).
		Msg("Filter evaluation failed")
	return SendErrorWithCode(c, fiber.StatusInternalServerError, "Failed to evaluate filters", "EVALUATION_ERROR")
}

// customErrorHandler renders errors that escaped the handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}
	return SendError(c, code, message)
}
