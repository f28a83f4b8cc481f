package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

var ErrInternal = errors.New("internal_error")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// recoverPanic answers a handler panic with a 500 carrying the panic value.
func recoverPanic(c *gin.Context, recovered any) {
	err, ok := recovered.(error)
	if !ok {
		err = errors.New(fmt.Sprint(recovered))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// mapError translates domain errors into the status codes gateways and
// browsers expect. Unclassified errors echo their message with a 500.
func mapError(err error) (int, errorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	case errors.Is(err, paymentdomain.ErrMalformedPayload),
		errors.Is(err, paymentdomain.ErrInvalidProvider):
		return http.StatusBadRequest, errorResponse{Error: "Invalid payload"}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorResponse{Error: "Invalid signature"}
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return http.StatusNotFound, errorResponse{Error: "Provider not found"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
}

func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, paymentdomain.ErrMalformedPayload),
		errors.Is(err, paymentdomain.ErrInvalidProvider):
		return "validation_error", "invalid_payload"
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return "unauthorized", "invalid_signature"
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return "not_found", "provider_not_found"
	default:
		return "internal_error", ErrInternal.Error()
	}
}
