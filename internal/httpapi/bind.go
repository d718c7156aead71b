package httpapi

import (
	"partner-portal/internal/api"
	"partner-portal/internal/guard"
	"partner-portal/internal/session"
	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxStoreKey  = "portal.store"
	ctxClientKey = "portal.api"

	// deviceMaxAge keeps the device id for roughly a year; it carries no credentials.
	deviceMaxAge = 365 * 24 * 60 * 60
)

// Bind resolves the device scope and attaches the session store and an API client
// bound to it. Every later handler and the route guard read them from the gin context.
func (h Handlers) Bind() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookies := session.NewGinCookies(c, h.Cookies)
		scope, ok := cookies.Cookie(session.CookieDevice)
		if _, err := uuid.Parse(scope); !ok || err != nil {
			scope = uuid.NewString()
			cookies.SetCookie(session.CookieDevice, scope, deviceMaxAge)
		}

		store := session.NewStore(h.Storage, scope, cookies, h.SessionTTL, session.WithLogger(logger.FromGin(c)))
		c.Set(ctxStoreKey, store)
		c.Set(ctxClientKey, h.Accounts.Client(store))
		c.Next()
	}
}

// Binder hands the guard the per-request session and user source.
func (h Handlers) Binder() guard.Binder {
	return func(c *gin.Context) (guard.Session, guard.Users) {
		return storeFrom(c), clientFrom(c)
	}
}

func storeFrom(c *gin.Context) *session.Store {
	return c.MustGet(ctxStoreKey).(*session.Store)
}

func clientFrom(c *gin.Context) *api.Client {
	return c.MustGet(ctxClientKey).(*api.Client)
}
