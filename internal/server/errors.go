package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/internal/logging"
)

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.BackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": msg}. Server-side failures are logged and
// their detail is kept out of the response.
func (s *Server) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), s.log).Error("request failed", pocketbook.Fields{
			"err":  err,
			"kind": kind.String(),
			"path": c.FullPath(),
		})
		switch kind {
		case apperr.BackendUnavailable:
			msg = "backend unavailable"
		case apperr.DataConsistency:
			msg = "stored data is inconsistent"
		case apperr.Transaction:
			msg = "transaction failed"
		default:
			msg = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "server.decode", err)
	}
	return nil
}

func intParam(c *gin.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, apperr.Errorf(apperr.InvalidInput, "server.param", "%s must be an integer", name)
	}
	return n, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Errorf(apperr.InvalidInput, "server.query", "%s must be a non-negative integer", name)
	}
	return n, nil
}
