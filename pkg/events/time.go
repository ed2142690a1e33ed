package events

import "time"

// timeLayout matches spec's "ISO-8601 UTC" produced_at requirement.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
