package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	RetryAfter int         `json:"retryAfter,omitempty"`
}

func SuccessResponse(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse writes the error envelope. detail is a client-safe
// description; internal error text never goes through here.
func ErrorResponse(c *gin.Context, code int, message string, detail string) {
	c.JSON(code, APIResponse{
		Success: false,
		Message: message,
		Error:   detail,
	})
}

// AbortWithError is ErrorResponse for middleware.
func AbortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, APIResponse{
		Success: false,
		Message: message,
	})
}

// RateLimitedResponse sets Retry-After (seconds, at least 1) and writes a 429.
func RateLimitedResponse(c *gin.Context, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.JSON(429, APIResponse{
		Success:    false,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfterSeconds,
	})
}
