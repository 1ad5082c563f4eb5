package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/repository"
	"carpool/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidRequestID),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidSeatCount),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrCodeExpired):
		return http.StatusBadRequest

	// Wrong actor for the action
	case errors.Is(err, service.ErrNotAuthorized),
		errors.Is(err, service.ErrGenderRestricted):
		return http.StatusForbidden

	// State conflicts
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrRideNotOpen),
		errors.Is(err, service.ErrNoSeatsAvailable),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrNoApprovedPassengers),
		errors.Is(err, service.ErrRideLocked):
		return http.StatusConflict

	// External payment processor down
	case errors.Is(err, service.ErrPaymentProcessorUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
