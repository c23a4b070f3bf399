// Package response writes the JSON envelope shared by every HTTP route.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
)

// Envelope is the body of every non-WebSocket response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// BadRequest writes 400 with a validation error.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{
		Error: &ErrorBody{Code: navigation.CodeValidation, Message: message},
	})
}

// Error maps err to a status code and writes it.
func Error(c *gin.Context, err error) {
	status := StatusFor(err)
	body := &ErrorBody{
		Code:      navigation.ErrorCode(err),
		Message:   err.Error(),
		Retryable: navigation.IsRetryable(err),
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, Envelope{Error: body})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var ve *navigation.ValidationError
	var se *navigation.StateError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, navigation.ErrNoPathFound):
		return http.StatusNotFound
	case errors.As(err, &se):
		return http.StatusConflict
	case errors.Is(err, navigation.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
