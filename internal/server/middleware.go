package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/internal/logging"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-KEY"
	HeaderAction    = "X-Action-Identifier"
)

// requestID tags the request context with the caller's X-Request-ID, or a fresh UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		f := pocketbook.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		l := logging.FromContext(c.Request.Context(), s.log)
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("request", f)
		case status >= http.StatusBadRequest:
			l.Warn("request", f)
		default:
			l.Info("request", f)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logging.FromContext(c.Request.Context(), s.log).Error("panic", pocketbook.Fields{
			"panic": rec,
			"path":  c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

// guard checks the API key (when one is configured) and the action identifier.
func (s *Server) guard(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIKey != "" && !validKey(c, s.opts.APIKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: invalid or missing API key"})
			return
		}
		if c.GetHeader(HeaderAction) != action {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "action not allowed"})
			return
		}
		c.Next()
	}
}

func validKey(c *gin.Context, want string) bool {
	got := c.GetHeader(HeaderAPIKey)
	if got == "" {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			got = strings.TrimPrefix(h, "Bearer ")
		}
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
