package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, conflict, unavailable, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errConflict returns a 409 error.
func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

var (
	badRequestErrs = []error{
		domain.ErrInvalidBearingFormat,
		domain.ErrInvalidBearingRange,
		domain.ErrInvalidArc,
		domain.ErrDegeneratePolygon,
		domain.ErrMissingLotNumber,
	}
	notFoundErrs = []error{
		domain.ErrPlanNotFound,
		domain.ErrPointNotFound,
		domain.ErrSourcePointNotFound,
		domain.ErrPolygonNotFound,
		domain.ErrNoActiveTraverse,
	}
	conflictErrs = []error{
		domain.ErrDuplicatePointNumber,
		domain.ErrDuplicateLotNumber,
		domain.ErrPointInUse,
		domain.ErrTraverseInProgress,
		domain.ErrTraverseNotOpen,
		domain.ErrNoClosingCandidate,
		domain.ErrAdjustmentToleranceExceeded,
	}
)

// writeError maps a service error onto the APIError envelope.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errorIn(err, badRequestErrs):
		return errBadRequest(c, err.Error())
	case errorIn(err, notFoundErrs):
		return errNotFound(c, err.Error())
	case errorIn(err, conflictErrs):
		return errConflict(c, err.Error())
	case errors.Is(err, usecases.ErrUnavailable):
		return errUnavailable(c, err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, err.Error())
}

func errorIn(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
