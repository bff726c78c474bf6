package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a Gin middleware function that logs requests
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
		}

		// Attach the caller's identity when the auth middleware already ran
		identity, _ := c.Get("identity")
		var identityStr string
		if identity != nil {
			identityStr = fmt.Sprintf("%v", identity)
		}

		reqLogger := logger.WithRequestID(requestID)
		if identityStr != "" {
			reqLogger = reqLogger.WithIdentity(identityStr)
		}

		// Store the logger in the context for handlers and error middleware
		c.Set("logger", reqLogger)

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		method := c.Request.Method

		reqLogger.LogRequest(method, path, status, latency)

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				reqLogger.LogError(err.Err, "request error",
					"method", method,
					"path", path,
					"error_type", err.Type,
				)
			}
		}
	}
}
