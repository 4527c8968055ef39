// admin.go provides the privilege gate for the review and audit endpoints.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
)

// RequireAdmin rejects requests from non-admin users. Must run after
// AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abortError(c, apperr.KindUnauthorized, "Authentication required")
			return
		}
		if !user.IsAdmin {
			abortError(c, apperr.KindForbidden, "Administrator privileges required")
			return
		}

		c.Next()
	}
}
