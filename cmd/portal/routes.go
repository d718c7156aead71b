package main

import (
	"log/slog"

	"partner-portal/internal/guard"
	"partner-portal/internal/httpapi"
	"partner-portal/internal/metrics"
	"partner-portal/internal/rbac"
	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// routerConfig is the slice of configuration the route table needs.
type routerConfig struct {
	PublicRoutes []string
	LoginPath    string
}

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func newRouter(log *slog.Logger, h httpapi.Handlers, m *metrics.Metrics, rc routerConfig) *gin.Engine {
	routes := guard.NewRoutes(rc.PublicRoutes...)

	r := gin.New()
	r.Use(logger.Middleware(log))
	r.Use(httpapi.Recover())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Everything below is scoped to a device.
	dev := r.Group("/")
	dev.Use(h.Bind())

	// Session actions are not pages; they must work without a session.
	dev.POST("/login", h.Limiter.Throttle(), h.Login)
	dev.POST("/logout", h.Logout)
	dev.POST("/enroll/verify", h.Limiter.Throttle(), h.EnrollVerify)
	dev.POST("/enroll/recovery", h.Limiter.Throttle(), h.EnrollRecovery)
	dev.POST("/enroll/reload", h.EnrollReload)

	app := dev.Group("/")
	app.Use(guard.Edge(routes, rc.LoginPath))
	app.Use(guard.RequireSession(routes, rc.LoginPath, h.Binder(), m))

	// public
	app.GET("/", h.LoginView)
	app.GET("/login", h.LoginView)
	app.GET("/enroll", h.EnrollView)

	// protected
	app.GET("/dashboard", h.Dashboard)
	app.GET("/referrals", h.ListReferrals)
	app.POST("/referrals", h.CreateReferral)
	app.PATCH("/referrals/:id", h.UpdateReferral)
	app.POST("/referrals/:id/note", h.SendNote)
	app.GET("/referrals/:id/activity", h.Activity)
	app.GET("/referrals/:id/files", h.ListFiles)
	app.POST("/referrals/:id/files", h.UploadFiles)
	app.DELETE("/referrals/:id/files/:file_id", h.DeleteFile)
	app.GET("/account", h.AccountView)
	app.POST("/account/password", h.ChangePassword)
	app.POST("/account/mfa/reset", h.ResetMFA)

	// admin: the live user's role decides, never the cookie.
	admin := app.Group("/admin")
	admin.Use(rbac.RequireRole("/dashboard", rbac.RoleAdmin))
	{
		admin.GET("", h.AdminOverview)
		admin.GET("/users", h.AdminUsers)
		admin.POST("/users", h.AdminCreateUser)
		admin.PATCH("/users/:id", h.AdminUpdateUser)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
		admin.POST("/users/:id/reset-password", h.AdminResetPassword)
		admin.POST("/users/:id/mfa/reset", h.AdminResetUserMFA)
		admin.GET("/referrals", h.AdminReferrals)
		admin.PATCH("/referrals/:id", h.AdminUpdateReferral)
		admin.DELETE("/referrals/:id", h.AdminDeleteReferral)
		admin.GET("/announcements", h.AdminAnnouncements)
		admin.PUT("/announcements", h.AdminUpdateAnnouncements)
		admin.GET("/audit", h.AdminAudit)
	}
	return r
}
