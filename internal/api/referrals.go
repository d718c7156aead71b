package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"partner-portal/internal/gateway"
	"partner-portal/pkg/utils"
)

// Pipeline statuses in display order. Transitions are enforced by the backend.
var Statuses = []string{
	"New",
	"Contacted",
	"Qualified",
	"Proposal Sent",
	"Won",
	"Lost",
	"On Hold",
	"Commission Paid",
}

// StatusBadge returns the badge style for a referral status.
func StatusBadge(status string) string {
	switch status {
	case "New":
		return "info"
	case "Contacted", "Qualified", "Proposal Sent":
		return "progress"
	case "Won", "Commission Paid":
		return "success"
	case "Lost":
		return "danger"
	case "On Hold":
		return "warning"
	default:
		return "neutral"
	}
}

type Referral struct {
	ID               string         `json:"id" validate:"required"`
	RefNo            string         `json:"ref_no"`
	Company          string         `json:"company"`
	Status           string         `json:"status"`
	CreatedAt        *utils.Time    `json:"created_at,omitempty"`
	ContactName      string         `json:"contact_name,omitempty"`
	ContactEmail     string         `json:"contact_email,omitempty"`
	ContactPhone     string         `json:"contact_phone,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	AgentID          string         `json:"agent_id,omitempty"`
	Locations        []string       `json:"locations,omitempty"`
	OpportunityTypes []string       `json:"opportunity_types,omitempty"`
	Environment      map[string]any `json:"environment,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}

// NewReferral is the agent submission form.
type NewReferral struct {
	Company          string         `json:"company" validate:"required"`
	ContactName      string         `json:"contact_name" validate:"required"`
	ContactEmail     string         `json:"contact_email" validate:"required,email"`
	ContactPhone     string         `json:"contact_phone" validate:"required"`
	Notes            string         `json:"notes,omitempty"`
	Locations        []string       `json:"locations,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	OpportunityTypes []string       `json:"opportunity_types,omitempty"`
	Environment      map[string]any `json:"environment,omitempty"`
}

// ReferralPatch carries only the fields to change. Status and AgentID are honored on the admin path only.
type ReferralPatch struct {
	Company          *string        `json:"company,omitempty"`
	Status           *string        `json:"status,omitempty"`
	ContactName      *string        `json:"contact_name,omitempty"`
	ContactEmail     *string        `json:"contact_email,omitempty"`
	ContactPhone     *string        `json:"contact_phone,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
	Locations        []string       `json:"locations,omitempty"`
	OpportunityTypes []string       `json:"opportunity_types,omitempty"`
	Environment      map[string]any `json:"environment,omitempty"`
	Reason           *string        `json:"reason,omitempty"`
	AgentID          *string        `json:"agent_id,omitempty"`
}

func (p ReferralPatch) empty() bool {
	b, _ := json.Marshal(p)
	return string(b) == "{}"
}

type ReferralFile struct {
	FileID      string      `json:"id" validate:"required"`
	Name        string      `json:"name"`
	Size        int64       `json:"size_bytes"`
	ContentType string      `json:"content_type"`
	CreatedAt   *utils.Time `json:"created_at,omitempty"`
}

type UploadedFile struct {
	FileID      string `json:"file_id" validate:"required"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// MyReferrals lists the caller's referrals; 401 and 404 yield an empty list.
func (c *Client) MyReferrals(ctx context.Context) ([]Referral, error) {
	raw, err := c.get(ctx, "/referrals/my", nil)
	if err != nil {
		if emptyOnMissing(err) {
			return []Referral{}, nil
		}
		return nil, err
	}
	return decodeList[Referral]("referrals", raw)
}

func (c *Client) CreateReferral(ctx context.Context, r NewReferral) (Referral, error) {
	r.Company = strings.TrimSpace(r.Company)
	r.ContactName = strings.TrimSpace(r.ContactName)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
	r.ContactPhone = strings.TrimSpace(r.ContactPhone)
	if err := validate.Struct(r); err != nil {
		return Referral{}, invalid(fieldMessage(err, "referral"), err)
	}
	raw, err := c.send(ctx, http.MethodPost, "/referrals/", r)
	if err != nil {
		return Referral{}, err
	}
	return decodeOne[Referral]("referral", raw)
}

// UpdateMyReferral edits an agent-owned referral. Status changes are not sent on this path.
func (c *Client) UpdateMyReferral(ctx context.Context, id string, p ReferralPatch) (Referral, error) {
	p.Status = nil
	p.AgentID = nil
	if p.empty() {
		return Referral{}, ErrNoChanges
	}
	raw, err := c.send(ctx, http.MethodPatch, "/referrals/"+url.PathEscape(id), p)
	if err != nil {
		return Referral{}, err
	}
	return decodeOne[Referral]("referral", raw)
}

func (c *Client) ReferralFiles(ctx context.Context, id string) ([]ReferralFile, error) {
	raw, err := c.get(ctx, "/referrals/"+url.PathEscape(id)+"/files", nil)
	if err != nil {
		if emptyOnMissing(err) {
			return []ReferralFile{}, nil
		}
		return nil, err
	}
	var env struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Entity: "referral-files", Err: err}
	}
	if len(env.Items) == 0 {
		return []ReferralFile{}, nil
	}
	return decodeList[ReferralFile]("referral-files", env.Items)
}

// Upload is one file of a multipart upload.
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// UploadReferralFiles streams each file to the backend in order. It stops at the first
// failure and returns the files stored so far; retrying is left to the user.
func (c *Client) UploadReferralFiles(ctx context.Context, id string, files []Upload) ([]UploadedFile, error) {
	if len(files) == 0 {
		return nil, invalid("Choose at least one file.", nil)
	}
	done := make([]UploadedFile, 0, len(files))
	for _, f := range files {
		body, contentType, err := multipartBody(f)
		if err != nil {
			return done, err
		}
		raw, err := c.raw(ctx, gateway.Request{
			Method:      http.MethodPost,
			Path:        "/referrals/" + url.PathEscape(id) + "/files",
			Body:        body,
			ContentType: contentType,
		})
		if err != nil {
			return done, err
		}
		up, err := decodeOne[UploadedFile]("referral-file", raw)
		if err != nil {
			return done, err
		}
		done = append(done, up)
	}
	return done, nil
}

func multipartBody(f Upload) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name)}
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h["Content-Type"] = []string{ct}
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, f.Content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType(), nil
}

func (c *Client) DeleteReferralFile(ctx context.Context, referralID, fileID string) error {
	raw, err := c.send(ctx, http.MethodDelete, "/referrals/"+url.PathEscape(referralID)+"/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return err
	}
	return ok("referral-file-delete", raw)
}

// SendAgentNote mails a free-text note about an owned referral to the referral desk.
func (c *Client) SendAgentNote(ctx context.Context, id, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return invalid("Note is required.", nil)
	}
	raw, err := c.raw(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/referrals/" + url.PathEscape(id) + "/agent-note",
		Query:  url.Values{"note": []string{note}},
	})
	if err != nil {
		return err
	}
	return ok("agent-note", raw)
}
