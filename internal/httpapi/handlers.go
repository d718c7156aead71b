package httpapi

import (
	"net/http"
	"time"

	"partner-portal/internal/account"
	"partner-portal/internal/httperr"
	"partner-portal/internal/metrics"
	"partner-portal/internal/mfa"
	"partner-portal/internal/rbac"
	"partner-portal/internal/session"
	"partner-portal/pkg/logger"
	"partner-portal/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the backend through api.Client, return JSON.
type Handlers struct {
	Accounts    *account.Service
	Storage     session.Storage
	Enrollments *mfa.Registry
	Gate        utils.Gate
	Limiter     *Limiter
	Metrics     *metrics.Metrics

	Cookies    session.CookieOptions
	SessionTTL time.Duration
	LoginPath  string
}

const (
	homePath   = "/dashboard"
	enrollPath = "/enroll"
)

func (h Handlers) loginPath() string {
	if h.LoginPath == "" {
		return "/"
	}
	return h.LoginPath
}

// fail answers an inline error. The page keeps the user's input, so the message is all it needs.
func fail(c *gin.Context, err error) {
	status := httperr.StatusFor(err)
	if status >= 500 {
		logger.FromGin(c).Warn("request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": httperr.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// redirect sends navigations to path and tells scripts where to go.
func redirect(c *gin.Context, status int, path string, body gin.H) {
	if rbac.WantsJSON(c) {
		if body == nil {
			body = gin.H{}
		}
		body["redirect"] = path
		c.JSON(status, body)
		return
	}
	c.Redirect(http.StatusSeeOther, path)
}

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
