// Package middleware holds the gin middleware used by the local emulator.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/response"
)

// CORS answers preflight requests for allowOrigin. Other requests pass
// through; the API adds its own CORS headers to proxied responses.
func CORS(allowOrigin string, allowHeaders ...string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	if len(allowHeaders) == 0 {
		allowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "xsrf-token"}
	}
	headers := strings.Join(allowHeaders, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", headers)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// Recovery turns a panic into the standard error envelope
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"panic":      fmt.Sprintf("%v", recovered),
		}).Error("Request panicked")

		abortWithEnvelope(c, http.StatusInternalServerError, "Error", "internal server error")
	})
}

func abortWithEnvelope(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, response.Envelope{Type: kind, Message: message})
}
