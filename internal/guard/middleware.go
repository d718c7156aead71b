package guard

import (
	"net/http"

	"partner-portal/internal/api"
	"partner-portal/internal/auth"
	"partner-portal/internal/httperr"
	"partner-portal/internal/metrics"
	"partner-portal/internal/rbac"
	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is answered when the caller went away mid-check.
const StatusClientClosedRequest = 499

const ctxUserKey = "guard.user"

// Binder returns the session and user source for the current request.
type Binder func(c *gin.Context) (Session, Users)

// RequireSession runs one in-page Check per request for every non-public path.
// Authenticated requests continue with the live user in context; others are sent to
// loginPath (303 for navigations, 401 JSON for scripts) after the session is cleared.
func RequireSession(routes Routes, loginPath string, bind Binder, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if routes.IsPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		sess, users := bind(c)
		chk := NewCheck(sess, users, WithLogger(logger.FromGin(c)), WithMetrics(m))
		defer chk.Close()

		switch chk.Run(c.Request.Context()) {
		case Authenticated:
			u, _ := chk.User()
			c.Set(ctxUserKey, u)
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), Identity(u)))
			c.Next()
		case Unauthenticated:
			if rbac.WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":    httperr.MsgUnauthenticated,
					"redirect": loginPath,
				})
				return
			}
			c.Redirect(http.StatusSeeOther, loginPath)
			c.Abort()
		default:
			c.AbortWithStatus(StatusClientClosedRequest)
		}
	}
}

// Identity converts the live user into the request identity consumed by rbac.
func Identity(u api.User) auth.Identity {
	return auth.Identity{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role.String(),
	}
}

// UserFrom returns the live user placed in context by RequireSession.
func UserFrom(c *gin.Context) (api.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return api.User{}, false
	}
	u, ok := v.(api.User)
	return u, ok
}
