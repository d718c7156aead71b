package audit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"partner-portal/pkg/utils"
)

// Event is one backend audit record. Records are append-only on the backend;
// the portal only reads them.
type Event struct {
	ID          ID         `json:"id" validate:"required"`
	ActorUserID string     `json:"actor_user_id,omitempty"`
	Action      string     `json:"action" validate:"required"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id,omitempty"`
	CreatedAt   utils.Time `json:"created_at"`
}

// Actions written by the backend.
const (
	ActionReferralCreated      = "referral.created"
	ActionReferralUpdated      = "referral.updated"
	ActionReferralFileUploaded = "referral.file.uploaded"
	ActionReferralFileDeleted  = "referral.file.deleted"
	ActionAdminReferralUpdated = "admin.referral.updated"
	ActionAdminReferralDeleted = "admin.referral.deleted"
	ActionAdminUserCreated     = "admin.user.created"
	ActionAdminUserUpdated     = "admin.user.updated"
	ActionAdminUserDeleted     = "admin.user.deleted"
	ActionAdminPasswordReset   = "admin.password.reset"
	ActionAdminMFAReset        = "admin.mfa.reset"
)

// ID is the event identifier; the backend emits either a uuid string or a serial integer.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("audit: id must be a string or integer: %w", err)
	}
	*id = ID(n.String())
	return nil
}
