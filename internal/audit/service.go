package audit

import (
	"context"
	"errors"
)

// Source is where the feed reads events from.
type Source interface {
	AuditEvents(ctx context.Context, limit, offset int) ([]Event, error)
}

// Entry is an event with its rendered label.
type Entry struct {
	Event
	Label string `json:"label"`
}

// Service builds the activity feeds shown on the dashboard and the admin audit page.
type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ClampPageSize bounds a requested page size to what the backend accepts.
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Page returns one labelled page of the audit log.
func (s *Service) Page(ctx context.Context, limit, offset int, refNoByID map[string]string) ([]Entry, error) {
	if s.src == nil {
		return nil, errors.New("audit: source not configured")
	}
	if offset < 0 {
		offset = 0
	}
	events, err := s.src.AuditEvents(ctx, ClampPageSize(limit), offset)
	if err != nil {
		return nil, err
	}
	return Entries(events, refNoByID), nil
}

// Activity returns the recent events about one referral, or all recent events when id is empty.
func (s *Service) Activity(ctx context.Context, referralID string, refNoByID map[string]string) ([]Entry, error) {
	if s.src == nil {
		return nil, errors.New("audit: source not configured")
	}
	events, err := s.src.AuditEvents(ctx, DefaultPageSize, 0)
	if err != nil {
		return nil, err
	}
	return Entries(ForEntity(events, referralID), refNoByID), nil
}

// Entries labels events in order.
func Entries(events []Event, refNoByID map[string]string) []Entry {
	out := make([]Entry, 0, len(events))
	for _, e := range events {
		out = append(out, Entry{Event: e, Label: Label(e, refNoByID)})
	}
	return out
}
