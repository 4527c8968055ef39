// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Admin → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB
// work. Auth populates the user identity; the admin check reads from that
// context.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/auth"
	"github.com/kafka-portal/kafka-portal/internal/db/models"
	"github.com/kafka-portal/kafka-portal/internal/db/repositories"
)

// Context keys set by AuthMiddleware.
const (
	UserKey   = "user"
	UserIDKey = "user_id"
)

// abortError rejects the request with the same body shape handlers use:
// the caller-facing message plus the machine-checkable kind.
func abortError(c *gin.Context, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
		"error": message,
		"kind":  string(kind),
	})
}

// AuthMiddleware validates the bearer session token and loads the user. A
// token for a deleted or deactivated user is rejected even when its signature
// and expiry are still good.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortError(c, apperr.KindUnauthorized, "Missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortError(c, apperr.KindUnauthorized, "Authorization header must start with 'Bearer '")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			abortError(c, apperr.KindUnauthorized, "Authorization token is empty")
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			abortError(c, apperr.KindUnauthorized, "Invalid or expired token")
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			abortError(c, apperr.KindStorage, "Failed to load user")
			return
		}
		if user == nil || !user.IsActive {
			abortError(c, apperr.KindUnauthorized, "Account is not active")
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)

		c.Next()
	}
}

// CurrentUser returns the authenticated user set by AuthMiddleware.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
