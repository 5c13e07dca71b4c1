// README: Identity middleware; trusts the upstream auth proxy's user header.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	userHeader = "X-User-ID"
	uidKey     = "caller_uid"
)

// Identity requires the user header on every request. Authentication
// itself happens upstream; here we only bind the asserted identity to the
// request context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(userHeader)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(uidKey, uid)
		c.Next()
	}
}

// CallerUID returns the authenticated user id bound by Identity, or ""
// outside an authenticated route.
func CallerUID(c *gin.Context) string {
	return c.GetString(uidKey)
}
