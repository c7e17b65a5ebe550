package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/good-deed-map/backend/internal/auth"
	"github.com/good-deed-map/backend/pkg/response"
)

const (
	// ContextUserID is the gin context key for the authenticated user ID.
	ContextUserID = "user_id"
	// ContextUserRole is the gin context key for the user role.
	ContextUserRole = "user_role"
	// ContextUserEmail is the gin context key for the user email.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates the bearer token and stores the
// user's claims in the gin context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
