package domain

import "time"

type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusClosed SessionStatus = "closed"
)

type SpinCounters struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
	Expired int `json:"expired"`
}

type Session struct {
	ID        string        `json:"id"`
	Casino    string        `json:"casino"`
	Game      string        `json:"game"`
	StartedAt time.Time     `json:"startedAt"`
	ClosedAt  *time.Time    `json:"closedAt"`
	Status    SessionStatus `json:"status"`
	Spins     SpinCounters  `json:"spins"`
}

// SessionID builds the canonical identifier for a capture run.
func SessionID(casino, game string, start time.Time) string {
	return casino + "-" + game + "-" + start.Format("20060102-150405")
}
