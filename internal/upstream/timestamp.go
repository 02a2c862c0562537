package upstream

import (
	"fmt"
	"time"
)

// EpochFromUTC converts an upstream RFC3339 timestamp to epoch seconds. The
// value must carry an explicit UTC designator; a missing zone fails to parse
// and a non-zero offset is rejected rather than silently reinterpreted as
// local time.
func EpochFromUTC(raw string) (int64, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("malformed upstream timestamp %q: %w", raw, err)
	}
	if _, offset := t.Zone(); offset != 0 {
		return 0, fmt.Errorf("upstream timestamp %q is not UTC", raw)
	}
	return t.Unix(), nil
}
