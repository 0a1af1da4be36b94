package util

import (
	"fmt"
	"time"
)

// TimeLabel renders t relative to now. Timestamps in the future count as "just now".
func TimeLabel(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		return fmt.Sprintf("%d min. ago", int(diff/time.Minute))
	}
	if diff < 24*time.Hour {
		return fmt.Sprintf("%d h. ago", int(diff/time.Hour))
	}

	days := int(diff / (24 * time.Hour))
	switch {
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d d. ago", days)
	}
	return t.In(now.Location()).Format(DateLabelFormat)
}
