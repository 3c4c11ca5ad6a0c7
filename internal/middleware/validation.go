package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jtarrant/recfuse/internal/validation"
)

// ValidationMiddleware runs JSON schema validation on request bodies
// before they reach the handlers.
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{validator: validator}
}

// ValidateFeedbackEvent validates a feedback event payload. The body is
// restored so the handler can bind it normally.
func (vm *ValidationMiddleware) ValidateFeedbackEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_BODY",
					"message": "Failed to read request body",
				},
			})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if result := vm.validator.ValidateFeedbackEvent(body); !result.Valid {
			c.JSON(http.StatusBadRequest, result.ToAPIError())
			c.Abort()
			return
		}

		c.Next()
	}
}
