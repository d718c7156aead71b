package audit

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeEvents maps the raw /audit/events array onto Events, rejecting any other shape.
func DecodeEvents(raw []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, err
	}
	for i := range events {
		if err := validate.Struct(&events[i]); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
