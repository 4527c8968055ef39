// respond.go maps service-layer errors onto HTTP responses. Every error body
// carries the stable machine-checkable kind plus the caller-facing message;
// wrapped causes stay in the server logs.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
)

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if status >= 500 {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"kind", string(kind),
			"error", err)
	}

	c.JSON(status, gin.H{
		"error": apperr.Message(err),
		"kind":  string(kind),
	})
}
