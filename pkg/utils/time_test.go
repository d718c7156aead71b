package utils

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTime_AcceptsBackendLayouts(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, in := range []string{
		`"2025-03-04T05:06:07Z"`,
		`"2025-03-04T07:06:07+02:00"`,
		`"2025-03-04T05:06:07"`,
		`"2025-03-04T05:06:07.000000"`,
		`"2025-03-04 05:06:07"`,
	} {
		var got Time
		if err := json.Unmarshal([]byte(in), &got); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s: got %s", in, got)
		}
	}

	var null Time
	if err := json.Unmarshal([]byte(`null`), &null); err != nil || !null.IsZero() {
		t.Fatalf("expected null to decode as zero, got %v %v", null, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &null); err == nil {
		t.Fatalf("expected error for garbage timestamp")
	}
}

func TestTime_Marshal(t *testing.T) {
	b, _ := json.Marshal(Time{})
	if string(b) != "null" {
		t.Fatalf("expected null, got %s", b)
	}
	b, _ = json.Marshal(Time{time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
	if string(b) != `"2025-01-02T03:04:05Z"` {
		t.Fatalf("unexpected %s", b)
	}
}
