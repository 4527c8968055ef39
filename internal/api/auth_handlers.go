// auth_handlers.go implements login, session introspection, and the one-time
// admin bootstrap claim.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kafka-portal/kafka-portal/internal/apperr"
	"github.com/kafka-portal/kafka-portal/internal/middleware"
	"github.com/kafka-portal/kafka-portal/internal/services"
)

// AuthHandlers handles authentication endpoints
type AuthHandlers struct {
	login     *services.LoginService
	bootstrap *services.BootstrapService
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(login *services.LoginService, bootstrap *services.BootstrapService) *AuthHandlers {
	return &AuthHandlers{login: login, bootstrap: bootstrap}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler verifies directory credentials and issues a session token.
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "username and password are required"))
			return
		}

		token, user, err := h.login.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  user,
		})
	}
}

// MeHandler returns the authenticated user.
// GET /api/v1/users/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
	}
}

// LogoutHandler acknowledges a logout. Sessions are stateless JWTs, so the
// client discards the token; nothing is revoked server-side.
// POST /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

type claimAdminRequest struct {
	Token string `json:"token" binding:"required"`
}

// ClaimAdminHandler promotes the caller to first admin when the one-time
// bootstrap token matches.
// POST /api/v1/bootstrap/claim-admin
func (h *AuthHandlers) ClaimAdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req claimAdminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidation, "token is required"))
			return
		}

		user := middleware.CurrentUser(c)
		if err := h.bootstrap.ClaimAdmin(c.Request.Context(), user, req.Token, c.ClientIP()); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
