package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/logging"
)

// fail writes err as {"error","code"} with the status of its kind.
// Provider detail is added outside production only.
func (h *handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	ae, ok := apperr.As(err)
	if !ok {
		h.logger.Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", logging.RequestID(c)),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL_ERROR"})
		return
	}

	status := ae.Status()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", ae.Code),
			zap.Any("detail", ae.Detail),
			zap.String("request_id", logging.RequestID(c)),
			zap.Error(err),
		)
	}

	body := gin.H{"error": ae.Message, "code": ae.Code}
	if !h.cfg.Production && len(ae.Detail) > 0 {
		body["detail"] = ae.Detail
	}
	c.AbortWithStatusJSON(status, body)
}
