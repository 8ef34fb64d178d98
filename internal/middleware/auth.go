// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthRequired),
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthInvalidToken),
			})
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": i18n.T(lang, i18n.KeyAuthTokenExpired),
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Identity())
		c.Next()
	}
}

func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		if claims, err := utils.ValidateJWT(parts[1]); err == nil {
			c.Set("user_id", claims.Identity())
		}
		c.Next()
	}
}

// AdminRequired consults the role table; token claims never grant admin.
func AdminRequired(accessService *services.AccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := utils.GetIdentityFromContext(c)
		if identity == "" || !accessService.IsAdmin(c.Request.Context(), identity) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminAccessDenied),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ApprovalRequired is the policy gate for upload and checkout.
func ApprovalRequired(accessService *services.AccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := utils.GetIdentityFromContext(c)
		if err := accessService.CheckTransact(c.Request.Context(), identity); err != nil {
			utils.ErrorResponse(c, http.StatusForbidden, "NOT_APPROVED",
				i18n.T(utils.GetLangFromContext(c), i18n.KeyAccessApprovalRequired), nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
