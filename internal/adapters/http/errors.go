package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/domain"
)

var statusByKind = map[string]int{
	domain.KindInvalidArgument:  http.StatusBadRequest,
	domain.KindNotFound:         http.StatusNotFound,
	domain.KindConflict:         http.StatusConflict,
	domain.KindCapacityExceeded: http.StatusConflict,
	domain.KindForbidden:        http.StatusForbidden,
	domain.KindUnavailable:      http.StatusServiceUnavailable,
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("internal error")
	}
	if kind == domain.KindUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// badRequest reports a body or query that failed binding.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": domain.KindInvalidArgument})
}
