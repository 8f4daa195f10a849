package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskflow/internal/model"
)

const (
	// UserIDKey is the context key the authenticated user's id is stored under
	UserIDKey = "userID"
	// UserRoleKey is the context key the caller's role is stored under
	UserRoleKey = "userRole"
)

// Identity extracts the caller's identity from the X-User-ID and
// X-User-Role headers set by the upstream session layer. Authentication
// itself happens outside this service; here the identity is only
// injected into the request context so handlers never reach for
// ambient globals.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Missing X-User-ID header"})
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid X-User-ID header"})
			c.Abort()
			return
		}

		role := model.UserRole(c.GetHeader("X-User-Role"))
		if role != model.RoleAdmin {
			role = model.RoleUser
		}

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, role)
		c.Next()
	}
}

// RequireAdmin rejects callers whose role is not ADMIN.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(UserRoleKey)
		if !exists || role.(model.UserRole) != model.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated user id from the gin context.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(UserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}
