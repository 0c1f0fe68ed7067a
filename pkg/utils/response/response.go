package response

import (
	"context"
	"fmt"
	"net/http"

	"judgebox/pkg/errors"
	"judgebox/pkg/utils/contextkey"
	"judgebox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response represents a standard API response
type Response struct {
	Code    errors.ErrorCode `json:"code"`               // Error code
	Message string           `json:"message"`            // Error message
	Data    interface{}      `json:"data,omitempty"`     // Response data (omit if nil)
	Details interface{}      `json:"details,omitempty"`  // Additional details (omit if nil)
	TraceID string           `json:"trace_id,omitempty"` // Request trace ID
}

// Success sends a successful response with data
func Success(c *gin.Context, data interface{}) {
	resp := Response{
		Code:    errors.Success,
		Message: "Success",
		Data:    data,
		TraceID: getTraceID(c),
	}
	c.JSON(http.StatusOK, resp)
}

// Error sends an error response.
// Server-side failures are logged under a fresh correlation ID and the client
// only sees the code message plus that ID; the internal context chain stays in the logs.
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)
	status := customErr.Code.HTTPStatus()

	if status >= http.StatusInternalServerError {
		correlationID := uuid.NewString()
		ctx := context.WithValue(c.Request.Context(), contextkey.CorrelationID, correlationID)
		logger.Error(ctx, "internal error",
			zap.Int("code", int(customErr.Code)),
			zap.String("message", customErr.Error()),
			zap.Strings("steps", errors.Steps(err)),
			zap.Any("details", customErr.Details),
			zap.String("stack", customErr.Stack),
		)
		msg := fmt.Sprintf("%s. Please contact the administrator with this ID: %s", customErr.Code.Message(), correlationID)
		c.JSON(status, Response{
			Code:    customErr.Code,
			Message: msg,
			Details: map[string]string{"correlation_id": correlationID},
			TraceID: getTraceID(c),
		})
		return
	}

	logger.Warn(c.Request.Context(), "request error",
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
		zap.Any("details", customErr.Details),
	)

	resp := Response{
		Code:    customErr.Code,
		Message: customErr.Error(),
		TraceID: getTraceID(c),
	}
	if len(customErr.Details) > 0 {
		resp.Details = customErr.Details
	}
	c.JSON(status, resp)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

// BadRequest sends a 400 bad request error
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(contextkey.TraceID.String()); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
