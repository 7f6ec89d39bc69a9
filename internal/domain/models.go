package domain

import "time"

type ScanID string

// Status is the tri-state reachability of one hostname.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown" // run stopped before the probe started
)

type ProbeResult struct {
	Host   string `json:"host"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Scan is one probing run as tracked by the service layer.
type Scan struct {
	ID         ScanID      `json:"id"`
	Domain     string      `json:"domain,omitempty"`
	Hostnames  []string    `json:"hostnames"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Progress   Progress    `json:"progress"`
	Outcome    *RunOutcome `json:"outcome,omitempty"`

	// Summary is filled by ScanStore.List, which skips per-host results.
	Summary *Summary `json:"-"`
}

func (s *Scan) Running() bool {
	return s.FinishedAt == nil
}
