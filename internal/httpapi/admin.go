package httpapi

import (
	"net/http"
	"strconv"

	"partner-portal/internal/api"
	"partner-portal/internal/audit"
	"partner-portal/internal/guard"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	auditPageCookie = "audit_page_size"
	adminPageSize   = 50
	maxPageSize     = audit.MaxPageSize
)

// page reads limit/offset query parameters, falling back to def for the limit and
// capping it at maxPageSize.
func page(c *gin.Context, def int) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if limit <= 0 {
		limit = def
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// auditPageSize prefers the query, then the remembered cookie, and remembers the result.
func (h Handlers) auditPageSize(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		if v, cerr := c.Cookie(auditPageCookie); cerr == nil {
			n, _ = strconv.Atoi(v)
		}
	}
	n = audit.ClampPageSize(n)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auditPageCookie, strconv.Itoa(n), deviceMaxAge, "/", h.Cookies.Domain, h.Cookies.Secure, false)
	return n
}

// AdminOverview loads every admin panel concurrently. One failing panel fails the view.
func (h Handlers) AdminOverview(c *gin.Context) {
	user, _ := guard.UserFrom(c)
	cl := clientFrom(c)
	size := h.auditPageSize(c)

	var (
		users  api.Page[api.User]
		refs   api.Page[api.Referral]
		banner api.Announcements
		events []audit.Event
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		users, err = cl.AdminUsers(ctx, adminPageSize, 0)
		return err
	})
	g.Go(func() (err error) {
		refs, err = cl.AdminReferrals(ctx, adminPageSize, 0)
		return err
	})
	g.Go(func() error {
		banner = cl.Announcements(ctx)
		return nil
	})
	g.Go(func() (err error) {
		events, err = cl.AuditEvents(ctx, size, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"users":         users,
		"referrals":     gin.H{"items": referralViews(refs.Items), "next": refs.Next},
		"announcements": banner.Items,
		"audit":         audit.Entries(events, refNumbers(refs.Items)),
		"audit_limit":   size,
		"statuses":      api.Statuses,
	})
}

func (h Handlers) listUsers(c *gin.Context, status int, extra gin.H) {
	limit, offset := page(c, adminPageSize)
	users, err := clientFrom(c).AdminUsers(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{"users": users}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (h Handlers) AdminUsers(c *gin.Context) {
	h.listUsers(c, http.StatusOK, nil)
}

func (h Handlers) AdminCreateUser(c *gin.Context) {
	var req api.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	u, err := clientFrom(c).AdminCreateUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.listUsers(c, http.StatusCreated, gin.H{"user": u})
}

func (h Handlers) AdminUpdateUser(c *gin.Context) {
	var req api.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if _, err := clientFrom(c).AdminUpdateUser(c.Request.Context(), c.Param("id"), req); err != nil {
		fail(c, err)
		return
	}
	h.listUsers(c, http.StatusOK, nil)
}

func (h Handlers) AdminDeleteUser(c *gin.Context) {
	if err := clientFrom(c).AdminDeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	h.listUsers(c, http.StatusOK, nil)
}

type resetPasswordRequest struct {
	// Password empty asks the backend to generate and email one.
	Password string `json:"password"`
}

func (h Handlers) AdminResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := clientFrom(c).AdminResetPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h Handlers) AdminResetUserMFA(c *gin.Context) {
	if err := clientFrom(c).AdminResetUserMFA(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h Handlers) listAdminReferrals(c *gin.Context, status int) {
	limit, offset := page(c, adminPageSize)
	refs, err := clientFrom(c).AdminReferrals(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, gin.H{"referrals": gin.H{"items": referralViews(refs.Items), "next": refs.Next}, "statuses": api.Statuses})
}

func (h Handlers) AdminReferrals(c *gin.Context) {
	h.listAdminReferrals(c, http.StatusOK)
}

func (h Handlers) AdminUpdateReferral(c *gin.Context) {
	var req api.ReferralPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if _, err := clientFrom(c).AdminUpdateReferral(c.Request.Context(), c.Param("id"), req); err != nil {
		fail(c, err)
		return
	}
	h.listAdminReferrals(c, http.StatusOK)
}

func (h Handlers) AdminDeleteReferral(c *gin.Context) {
	if err := clientFrom(c).AdminDeleteReferral(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	h.listAdminReferrals(c, http.StatusOK)
}

func (h Handlers) AdminAnnouncements(c *gin.Context) {
	c.JSON(http.StatusOK, clientFrom(c).Announcements(c.Request.Context()))
}

func (h Handlers) AdminUpdateAnnouncements(c *gin.Context) {
	var req api.Announcements
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	a, err := clientFrom(c).UpdateAnnouncements(c.Request.Context(), req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) AdminAudit(c *gin.Context) {
	size := h.auditPageSize(c)
	_, offset := page(c, size)
	ctx := c.Request.Context()
	cl := clientFrom(c)

	var (
		entries []audit.Entry
		refs    api.Page[api.Referral]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		refs, err = cl.AdminReferrals(gctx, audit.MaxPageSize, 0)
		return err
	})
	var events []audit.Event
	g.Go(func() (err error) {
		events, err = cl.AuditEvents(gctx, size, offset)
		return err
	})
	if err := g.Wait(); err != nil {
		fail(c, err)
		return
	}
	entries = audit.Entries(events, refNumbers(refs.Items))
	c.JSON(http.StatusOK, gin.H{"audit": entries, "limit": size, "offset": offset})
}
