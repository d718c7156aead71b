package rbac

import (
	"net/http"

	"partner-portal/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireRole allows the request only when the live user (placed in context by the
// route guard) holds one of the allowed roles. The session role claim is never consulted.
// Navigations are sent back to fallback; API callers get a 403.
func RequireRole(fallback string, allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		raw, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		role, ok := ParseRole(raw)
		if ok {
			if _, allowed := allowedSet[role]; allowed {
				c.Next()
				return
			}
		}

		if WantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action."})
			return
		}
		c.Redirect(http.StatusSeeOther, fallback)
		c.Abort()
	}
}

// WantsJSON reports whether the caller is a script (XHR/fetch) rather than a page navigation.
func WantsJSON(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
