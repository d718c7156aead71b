package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"partner-portal/internal/audit"
)

// AdminReferrals lists every referral; 401 and 404 yield an empty page.
func (c *Client) AdminReferrals(ctx context.Context, limit, offset int) (Page[Referral], error) {
	raw, err := c.get(ctx, "/admin/referrals", pageQuery(limit, offset))
	if err != nil {
		if emptyOnMissing(err) {
			return Page[Referral]{Items: []Referral{}}, nil
		}
		return Page[Referral]{}, err
	}
	return decodePage[Referral]("referrals", raw)
}

func (c *Client) AdminUpdateReferral(ctx context.Context, id string, p ReferralPatch) (Referral, error) {
	if p.empty() {
		return Referral{}, ErrNoChanges
	}
	raw, err := c.send(ctx, http.MethodPatch, "/admin/referrals/"+url.PathEscape(id), p)
	if err != nil {
		return Referral{}, err
	}
	return decodeOne[Referral]("referral", raw)
}

func (c *Client) AdminDeleteReferral(ctx context.Context, id string) error {
	raw, err := c.send(ctx, http.MethodDelete, "/admin/referrals/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return ok("referral-delete", raw)
}

type Announcements struct {
	Items []string `json:"items"`
}

// Announcements never fails: the banner is optional, so any error yields no items.
func (c *Client) Announcements(ctx context.Context) Announcements {
	raw, err := c.get(ctx, "/admin/announcements", nil)
	if err != nil {
		return Announcements{Items: []string{}}
	}
	var a Announcements
	if err := json.Unmarshal(raw, &a); err != nil || a.Items == nil {
		return Announcements{Items: []string{}}
	}
	return a
}

func (c *Client) UpdateAnnouncements(ctx context.Context, items []string) (Announcements, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := c.send(ctx, http.MethodPut, "/admin/announcements", Announcements{Items: items})
	if err != nil {
		return Announcements{}, err
	}
	return decodeOne[Announcements]("announcements", raw)
}

// AuditEvents pages the audit log; 401 and 404 yield an empty list.
func (c *Client) AuditEvents(ctx context.Context, limit, offset int) ([]audit.Event, error) {
	raw, err := c.get(ctx, "/audit/events", pageQuery(limit, offset))
	if err != nil {
		if emptyOnMissing(err) {
			return []audit.Event{}, nil
		}
		return nil, err
	}
	events, err := audit.DecodeEvents(raw)
	if err != nil {
		return nil, &DecodeError{Entity: "audit-events", Err: err}
	}
	return events, nil
}
