package domain

import "math"

type Completion string

const (
	CompletionCompleted Completion = "completed"
	CompletionStopped   Completion = "stopped_by_user"
)

// RunOutcome holds per-host results in candidate order.
type RunOutcome struct {
	Results    []ProbeResult `json:"results"`
	Completion Completion    `json:"completion"`
}

type Summary struct {
	Total       int     `json:"total"`
	Up          int     `json:"up"`
	Down        int     `json:"down"`
	Unknown     int     `json:"unknown"`
	LivePercent float64 `json:"live_percent"`
}

func (o RunOutcome) Summary() Summary {
	var up, down, unknown int
	for _, r := range o.Results {
		switch r.Status {
		case StatusUp:
			up++
		case StatusDown:
			down++
		default:
			unknown++
		}
	}
	return NewSummary(up, down, unknown)
}

// NewSummary totals the counts and rounds the live share to one decimal.
func NewSummary(up, down, unknown int) Summary {
	s := Summary{Up: up, Down: down, Unknown: unknown, Total: up + down + unknown}
	if s.Total > 0 {
		s.LivePercent = math.Round(float64(s.Up)/float64(s.Total)*1000) / 10
	}
	return s
}

// StatusOf returns the status recorded for host, or StatusUnknown.
func (o RunOutcome) StatusOf(host string) Status {
	for _, r := range o.Results {
		if r.Host == host {
			return r.Status
		}
	}
	return StatusUnknown
}
