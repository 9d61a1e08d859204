package models

import (
	"sort"
	"time"
)

// ProbeOutcome is the result of probing exactly one port.
type ProbeOutcome struct {
	Port          int         `json:"port"`
	Status        ProbeStatus `json:"status"`
	Service       string      `json:"service,omitempty"`
	Banner        string      `json:"banner,omitempty"`
	Error         string      `json:"error,omitempty"`
	LatencyMillis int64       `json:"latency_ms"`
}

// ScanReport aggregates every outcome of one run, ordered by ascending port.
type ScanReport struct {
	ID        string         `json:"id,omitempty"`
	Host      string         `json:"host"`
	Address   string         `json:"address,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Requested int            `json:"requested"`
	Cancelled bool           `json:"cancelled"`
	Outcomes  []ProbeOutcome `json:"outcomes"`
}

// Complete reports whether every requested port has an outcome.
func (r *ScanReport) Complete() bool {
	return !r.Cancelled && len(r.Outcomes) == r.Requested
}

// Counts returns the number of open, closed and errored outcomes.
func (r *ScanReport) Counts() (open, closed, errored int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case ProbeOpen:
			open++
		case ProbeClosed:
			closed++
		case ProbeError:
			errored++
		}
	}
	return open, closed, errored
}

// Open returns the outcomes with status OPEN, preserving report order.
func (r *ScanReport) Open() []ProbeOutcome {
	var out []ProbeOutcome
	for _, o := range r.Outcomes {
		if o.Status == ProbeOpen {
			out = append(out, o)
		}
	}
	return out
}

// Outcome looks up the outcome recorded for port.
func (r *ScanReport) Outcome(port int) (ProbeOutcome, bool) {
	i := sort.Search(len(r.Outcomes), func(i int) bool { return r.Outcomes[i].Port >= port })
	if i < len(r.Outcomes) && r.Outcomes[i].Port == port {
		return r.Outcomes[i], true
	}
	return ProbeOutcome{}, false
}
