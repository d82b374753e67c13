package lib

import (
	"fmt"
	"time"
)

//formatTimeSince renders an activity time the way the chat header wants it:
//relative while recent, absolute once it isn't.
func formatTimeSince(at time.Time) string {
	since := time.Since(at)
	switch {
	case since < time.Minute:
		return "just now"
	case since < time.Hour:
		return fmt.Sprintf("%dm ago", int(since.Minutes()))
	case since < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(since.Hours()))
	case since < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(since.Hours()/24))
	default:
		return at.Format("2 Jan 2006")
	}
}
