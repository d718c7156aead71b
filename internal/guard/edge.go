package guard

import (
	"net/http"

	"partner-portal/internal/rbac"
	"partner-portal/internal/session"

	"github.com/gin-gonic/gin"
)

// Edge runs before any page handler and reads cookies only. A missing session cookie
// redirects to loginPath; the administrator area additionally needs the COVENANT role cookie.
// The role cookie is optimistic: handlers still re-check the live user.
func Edge(routes Routes, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if routes.IsPublic(path) {
			c.Next()
			return
		}

		if !hasSessionCookie(c) {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		if IsAdmin(path) {
			role, _ := c.Cookie(session.CookieRole)
			if r, ok := rbac.ParseRole(role); !ok || !rbac.IsAdmin(r) {
				c.Redirect(http.StatusFound, loginPath)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

func hasSessionCookie(c *gin.Context) bool {
	for _, name := range []string{session.CookieBackend, session.CookieToken} {
		if v, err := c.Cookie(name); err == nil && v != "" {
			return true
		}
	}
	return false
}
