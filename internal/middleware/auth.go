package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lulufarm/internal/pkg/jwt"
	"lulufarm/internal/pkg/response"
)

const (
	AdminCookieName = "admin_token"
	RoleAdmin       = "admin"
)

// AdminAuth accepts an admin JWT from "Authorization: Bearer" or from the
// admin_token cookie set at login.
func AdminAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			if cookie, err := c.Cookie(AdminCookieName); err == nil {
				raw = cookie
			}
		}
		if raw == "" {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		claims, err := jwtService.ValidateToken(raw)
		if err != nil {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}
		if claims.Role != RoleAdmin {
			response.AbortError(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
