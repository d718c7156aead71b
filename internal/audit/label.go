package audit

import "strings"

// Label renders a one-line description of e, e.g. "Referral AZR-2025-0001 updated".
// refNoByID maps referral ids to display numbers; unknown referrals keep the raw id.
func Label(e Event, refNoByID map[string]string) string {
	verb := e.Action
	if i := strings.LastIndex(verb, "."); i >= 0 {
		verb = verb[i+1:]
	}

	target := e.EntityID
	if e.EntityType == "referral" {
		if ref := refNoByID[target]; ref != "" {
			target = ref
		}
	}

	parts := []string{subjectOf(e)}
	if target != "" {
		parts = append(parts, target)
	}
	parts = append(parts, verb)
	return strings.Join(parts, " ")
}

func subjectOf(e Event) string {
	switch {
	case e.Action == ActionAdminPasswordReset:
		return "Password for user"
	case e.Action == ActionAdminMFAReset:
		return "MFA for user"
	case e.EntityType == "referral_file":
		return "File"
	case e.EntityType == "":
		return "Event"
	}
	t := strings.ReplaceAll(e.EntityType, "_", " ")
	return strings.ToUpper(t[:1]) + t[1:]
}

// ForEntity returns the events about entityID in the order received. An empty id returns all events.
func ForEntity(events []Event, entityID string) []Event {
	if entityID == "" {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out
}
