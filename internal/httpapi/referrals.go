package httpapi

import (
	"mime/multipart"
	"net/http"

	"partner-portal/internal/api"
	"partner-portal/internal/audit"
	"partner-portal/internal/guard"
	"partner-portal/internal/httperr"
	"partner-portal/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type referralView struct {
	api.Referral
	Badge string `json:"badge"`
}

func referralViews(refs []api.Referral) []referralView {
	out := make([]referralView, 0, len(refs))
	for _, r := range refs {
		out = append(out, referralView{Referral: r, Badge: api.StatusBadge(r.Status)})
	}
	return out
}

func refNumbers(refs []api.Referral) map[string]string {
	m := make(map[string]string, len(refs))
	for _, r := range refs {
		if r.RefNo != "" {
			m[r.ID] = r.RefNo
		}
	}
	return m
}

// Dashboard loads the agent's referrals, the announcement banner and recent activity together.
func (h Handlers) Dashboard(c *gin.Context) {
	user, _ := guard.UserFrom(c)
	cl := clientFrom(c)

	var (
		refs     []api.Referral
		banner   api.Announcements
		activity []audit.Entry
		events   []audit.Event
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		refs, err = cl.MyReferrals(ctx)
		return err
	})
	g.Go(func() error {
		banner = cl.Announcements(ctx)
		return nil
	})
	g.Go(func() error {
		var err error
		events, err = cl.AuditEvents(ctx, audit.DefaultPageSize, 0)
		if err != nil {
			logger.FromGin(c).Info("activity feed unavailable", "error", err)
			events = []audit.Event{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		fail(c, err)
		return
	}
	activity = audit.Entries(events, refNumbers(refs))

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"referrals":     referralViews(refs),
		"announcements": banner.Items,
		"activity":      activity,
		"statuses":      api.Statuses,
	})
}

func (h Handlers) listReferrals(c *gin.Context, status int, extra gin.H) {
	refs, err := clientFrom(c).MyReferrals(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{"referrals": referralViews(refs)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (h Handlers) ListReferrals(c *gin.Context) {
	h.listReferrals(c, http.StatusOK, nil)
}

func (h Handlers) CreateReferral(c *gin.Context) {
	var req api.NewReferral
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ref, err := clientFrom(c).CreateReferral(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.listReferrals(c, http.StatusCreated, gin.H{"referral": referralView{Referral: ref, Badge: api.StatusBadge(ref.Status)}})
}

func (h Handlers) UpdateReferral(c *gin.Context) {
	var req api.ReferralPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if _, err := clientFrom(c).UpdateMyReferral(c.Request.Context(), c.Param("id"), req); err != nil {
		fail(c, err)
		return
	}
	h.listReferrals(c, http.StatusOK, nil)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h Handlers) SendNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := clientFrom(c).SendAgentNote(c.Request.Context(), c.Param("id"), req.Note); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Activity is the labelled audit trail of one referral.
func (h Handlers) Activity(c *gin.Context) {
	ctx := c.Request.Context()
	cl := clientFrom(c)
	refs, err := cl.MyReferrals(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	entries, err := audit.NewService(cl).Activity(ctx, c.Param("id"), refNumbers(refs))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

func (h Handlers) listFiles(c *gin.Context, status int, extra gin.H) {
	files, err := clientFrom(c).ReferralFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{"files": files}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (h Handlers) ListFiles(c *gin.Context) {
	h.listFiles(c, http.StatusOK, nil)
}

// UploadFiles relays every "file" part to the backend in order. A failure keeps what was
// already stored and reports it with the error.
func (h Handlers) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form required")
		return
	}
	defer form.RemoveAll()

	headers := form.File["file"]
	uploads := make([]api.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "unreadable file "+fh.Filename)
			return
		}
		defer f.Close()
		uploads = append(uploads, api.Upload{Name: fh.Filename, ContentType: contentType(fh), Content: f})
	}

	done, err := clientFrom(c).UploadReferralFiles(c.Request.Context(), c.Param("id"), uploads)
	if err != nil {
		c.AbortWithStatusJSON(httperr.StatusFor(err), gin.H{"error": httperr.Message(err), "uploaded": done})
		return
	}
	h.listFiles(c, http.StatusCreated, gin.H{"uploaded": done})
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (h Handlers) DeleteFile(c *gin.Context) {
	if err := clientFrom(c).DeleteReferralFile(c.Request.Context(), c.Param("id"), c.Param("file_id")); err != nil {
		fail(c, err)
		return
	}
	h.listFiles(c, http.StatusOK, nil)
}
