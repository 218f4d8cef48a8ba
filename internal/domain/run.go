package domain

import "time"

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusStopped = "stopped"
)

// Run is one bot process lifetime. A row is created at startup and finalized
// on shutdown so the dashboard can tell a dead process from a paused one.
type Run struct {
	ID        string      `json:"id"`
	Mode      TradingMode `json:"mode"`
	Status    string      `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}
