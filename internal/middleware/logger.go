package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agrirent/internal/pkg/response"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger logs every request with its latency and recovers from panics.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header(requestIDHeader, reqID)

		defer func() {
			entry := log.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"client_ip":  c.ClientIP(),
				"user_id":    c.GetInt64("user_id"),
				"latency":    time.Since(start).String(),
			})

			if recovered := recover(); recovered != nil {
				entry.WithField("stack", string(debug.Stack())).
					Error(fmt.Sprintf("panic: %v", recovered))
				response.Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal Server Error")
				c.Abort()
				return
			}

			entry = entry.WithField("status", c.Writer.Status())
			switch {
			case len(c.Errors) > 0:
				entry.WithField("errors", c.Errors.String()).Error("request failed")
			case c.Writer.Status() >= http.StatusInternalServerError:
				entry.Error("request failed")
			default:
				entry.Info("request")
			}
		}()

		c.Next()
	}
}
