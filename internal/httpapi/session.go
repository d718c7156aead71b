package httpapi

import (
	"context"
	"errors"
	"net/http"

	"partner-portal/internal/account"
	"partner-portal/internal/httperr"
	"partner-portal/internal/mfa"
	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// exclusive admits one submission per device at a time. It answers the caller itself
// and returns ok=false when the request must stop.
func (h Handlers) exclusive(c *gin.Context, action string) (release func(), ok bool) {
	if h.Gate == nil {
		return func() {}, true
	}
	release, ok, err := h.Gate.Acquire(c.Request.Context(), action+":"+storeFrom(c).Scope())
	if err != nil {
		logger.FromGin(c).Warn("submission gate unavailable", "action", action, "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": httperr.MsgServer})
		return nil, false
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "A request is already in progress."})
		return nil, false
	}
	return release, true
}

// LoginView describes the public sign-in page.
func (h Handlers) LoginView(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"view":      "login",
		"role_hint": storeFrom(c).Role(c.Request.Context()),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	MFACode  string `json:"mfa_code"`
}

// Login signs in, or starts authenticator enrollment when the backend requires it.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required.")
		return
	}
	release, ok := h.exclusive(c, "login")
	if !ok {
		return
	}
	defer release()

	ctx := c.Request.Context()
	store := storeFrom(c)
	res, err := h.Accounts.Login(ctx, store, req.Email, req.Password, req.MFACode)
	if err != nil {
		fail(c, err)
		return
	}

	if res.Outcome == account.OutcomeSignedIn {
		h.Enrollments.Delete(store.Scope())
		c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome.String(), "role": res.Role, "redirect": homePath})
		return
	}

	flow, err := h.Accounts.StartEnrollment(ctx, res, req.Email, req.Password)
	if flow != nil {
		h.Enrollments.Put(store.Scope(), flow)
	}
	body := gin.H{"outcome": res.Outcome.String(), "redirect": enrollPath}
	if err != nil {
		body["error"] = httperr.Message(err)
	}
	c.JSON(http.StatusOK, body)
}

func (h Handlers) Logout(c *gin.Context) {
	store := storeFrom(c)
	h.Enrollments.Delete(store.Scope())
	if err := h.Accounts.Logout(c.Request.Context(), store); err != nil {
		logger.FromGin(c).Warn("session clear failed", "error", err)
	}
	redirect(c, http.StatusOK, h.loginPath(), nil)
}

func enrollmentView(s mfa.Snapshot) gin.H {
	body := gin.H{
		"id":         s.ID,
		"state":      s.State,
		"busy":       s.Busy,
		"enrollment": s.Enrollment,
	}
	if s.Error != nil {
		body["error"] = httperr.Message(s.Error)
	}
	return body
}

// flow returns the device's enrollment, or sends the caller back to sign in.
func (h Handlers) flow(c *gin.Context) (*mfa.Flow, bool) {
	f, ok := h.Enrollments.Get(storeFrom(c).Scope())
	if !ok {
		if c.Request.Method == http.MethodGet {
			redirect(c, http.StatusNotFound, h.loginPath(), gin.H{"error": "No enrollment in progress."})
			c.Abort()
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No enrollment in progress.", "redirect": h.loginPath()})
		return nil, false
	}
	return f, true
}

func (h Handlers) EnrollView(c *gin.Context) {
	f, ok := h.flow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, enrollmentView(f.Snapshot()))
}

type verifyRequest struct {
	Code         string `json:"code"`
	RecoveryCode string `json:"recovery_code"`
}

func (h Handlers) EnrollVerify(c *gin.Context) {
	h.enrollSubmit(c, func(ctx context.Context, f *mfa.Flow, req verifyRequest) error {
		return f.Submit(ctx, req.Code)
	})
}

func (h Handlers) EnrollRecovery(c *gin.Context) {
	h.enrollSubmit(c, func(ctx context.Context, f *mfa.Flow, req verifyRequest) error {
		return f.SubmitRecovery(ctx, req.RecoveryCode)
	})
}

func (h Handlers) enrollSubmit(c *gin.Context, submit func(context.Context, *mfa.Flow, verifyRequest) error) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	f, ok := h.flow(c)
	if !ok {
		return
	}
	release, ok := h.exclusive(c, "enroll")
	if !ok {
		return
	}
	defer release()

	err := submit(account.WithSession(c.Request.Context(), storeFrom(c)), f, req)
	switch {
	case err == nil:
		h.Enrollments.Delete(storeFrom(c).Scope())
		c.JSON(http.StatusOK, gin.H{"state": mfa.Complete.String(), "redirect": homePath})
	case errors.Is(err, mfa.ErrBusy), errors.Is(err, mfa.ErrNotReady):
		c.AbortWithStatusJSON(http.StatusConflict, enrollmentView(f.Snapshot()))
	case errors.Is(err, mfa.ErrDiscarded):
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": "Enrollment expired. Please sign in again.", "redirect": h.loginPath()})
	default:
		body := enrollmentView(f.Snapshot())
		body["error"] = httperr.Message(err)
		c.AbortWithStatusJSON(httperr.StatusFor(err), body)
	}
}

func (h Handlers) EnrollReload(c *gin.Context) {
	f, ok := h.flow(c)
	if !ok {
		return
	}
	if err := f.Reload(c.Request.Context()); err != nil {
		if errors.Is(err, mfa.ErrBusy) || errors.Is(err, mfa.ErrNotReady) {
			c.AbortWithStatusJSON(http.StatusConflict, enrollmentView(f.Snapshot()))
			return
		}
		body := enrollmentView(f.Snapshot())
		body["error"] = httperr.Message(err)
		c.AbortWithStatusJSON(httperr.StatusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, enrollmentView(f.Snapshot()))
}
