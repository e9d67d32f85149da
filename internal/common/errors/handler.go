// internal/common/errors/handler.go
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorHandler translates taxonomy errors into HTTP responses.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Respond writes the JSON response for err and logs it. Validation errors
// stay field-specific; everything unknown becomes a generic 500.
func (h *ErrorHandler) Respond(c *gin.Context, err error) {
	switch e := err.(type) {
	case *ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": ErrCodeValidationFailed, "field": e.Field, "reason": e.Reason},
		})
	case *AuthError:
		status := http.StatusUnauthorized
		if e.Code == ErrCodeEmailInUse || e.Code == ErrCodeWeakPassword {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": gin.H{"code": e.Code, "message": e.Message},
		})
	case *SubscriptionError:
		// Non-fatal: the catalog is unavailable, not empty.
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": ErrCodeSubscriptionFailed, "message": e.Reason},
		})
	case *SubmissionError:
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{"code": ErrCodeSubmissionFailed, "message": e.Message},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_ERROR", "message": "Unexpected error"},
		})
	}

	h.logError(c, err)
}

func (h *ErrorHandler) logError(c *gin.Context, err error) {
	h.logger.Error("request failed", map[string]interface{}{
		"path":   c.FullPath(),
		"method": c.Request.Method,
		"error":  err.Error(),
	})
}
