package domain

import "time"

// DigestRequest selects which stored ideas make it into a digest.
// A positive Limit takes the top ideas by score; otherwise the last Days
// of ideas are used. MinScore applies in both cases.
type DigestRequest struct {
	Date     time.Time
	Limit    int
	Days     int
	MinScore float64
}

// DigestResult reports a digest generation attempt. Failures are carried in
// Error rather than returned, since persistence has already committed.
type DigestResult struct {
	Success       bool
	Path          string
	ItemsIncluded int
	ThemesCovered []string
	Error         string
	// Message is a short human note, e.g. when no ideas qualified.
	Message string
}
