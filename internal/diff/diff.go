// Package diff computes which ports changed state between two scan reports
// of the same host.
package diff

import (
	"sort"

	"github.com/hakim/portprobe/internal/models"
)

// PortChange describes one port whose exposure differs between two reports.
type PortChange struct {
	Port    int                `json:"port"`
	Service string             `json:"service"`
	Before  models.ProbeStatus `json:"before,omitempty"` // empty when the port was not in the report
	After   models.ProbeStatus `json:"after,omitempty"`
	// BannerBefore and BannerAfter are only set for banner changes.
	BannerBefore string `json:"banner_before,omitempty"`
	BannerAfter  string `json:"banner_after,omitempty"`
}

// DiffResult holds the delta between a current and a previous report. All
// slice fields are non-nil and sorted by port.
type DiffResult struct {
	Host       string `json:"host"`
	CurrentID  string `json:"current_id"`
	PreviousID string `json:"previous_id"`

	NewlyOpen     []PortChange `json:"newly_open"`
	NewlyClosed   []PortChange `json:"newly_closed"`
	BannerChanged []PortChange `json:"banner_changed"`

	// NotRescanned holds ports open in the previous report that the current
	// report has no outcome for. Their state is unknown, not closed.
	NotRescanned []PortChange `json:"not_rescanned"`

	// Partial is set when either report comes from a cancelled scan.
	Partial bool `json:"partial"`

	CurrentOpenCount  int `json:"current_open_count"`
	PreviousOpenCount int `json:"previous_open_count"`
}

// Empty reports whether no port was observed to change. NotRescanned ports
// are not changes.
func (d *DiffResult) Empty() bool {
	return len(d.NewlyOpen) == 0 && len(d.NewlyClosed) == 0 && len(d.BannerChanged) == 0
}

// Compute calculates the delta between current and previous. Pass an empty
// report for the "no previous scan" case.
func Compute(current, previous *models.ScanReport) *DiffResult {
	dr := &DiffResult{
		Host:          current.Host,
		CurrentID:     current.ID,
		PreviousID:    previous.ID,
		NewlyOpen:     []PortChange{},
		NewlyClosed:   []PortChange{},
		BannerChanged: []PortChange{},
		NotRescanned:  []PortChange{},
		Partial:       current.Cancelled || previous.Cancelled,
	}

	prev := byPort(previous.Outcomes)
	curr := byPort(current.Outcomes)

	for port, c := range curr {
		p, existed := prev[port]
		switch {
		case c.Status == models.ProbeOpen && (!existed || p.Status != models.ProbeOpen):
			dr.NewlyOpen = append(dr.NewlyOpen, change(port, c.Service, p, c, existed, true))
		case c.Status != models.ProbeOpen && existed && p.Status == models.ProbeOpen:
			dr.NewlyClosed = append(dr.NewlyClosed, change(port, c.Service, p, c, true, true))
		case c.Status == models.ProbeOpen && p.Status == models.ProbeOpen && c.Banner != p.Banner:
			pc := change(port, c.Service, p, c, true, true)
			pc.BannerBefore, pc.BannerAfter = p.Banner, c.Banner
			dr.BannerChanged = append(dr.BannerChanged, pc)
		}
	}

	// open before but never probed this time: no state is claimed for it
	for port, p := range prev {
		if _, present := curr[port]; !present && p.Status == models.ProbeOpen {
			dr.NotRescanned = append(dr.NotRescanned, change(port, p.Service, p, models.ProbeOutcome{}, true, false))
		}
	}

	sortChanges(dr.NewlyOpen)
	sortChanges(dr.NewlyClosed)
	sortChanges(dr.BannerChanged)
	sortChanges(dr.NotRescanned)

	dr.CurrentOpenCount = len(current.Open())
	dr.PreviousOpenCount = len(previous.Open())
	return dr
}

func change(port int, service string, before, after models.ProbeOutcome, hadBefore, hasAfter bool) PortChange {
	pc := PortChange{Port: port, Service: service}
	if hadBefore {
		pc.Before = before.Status
	}
	if hasAfter {
		pc.After = after.Status
	}
	return pc
}

func byPort(outcomes []models.ProbeOutcome) map[int]models.ProbeOutcome {
	m := make(map[int]models.ProbeOutcome, len(outcomes))
	for _, o := range outcomes {
		m[o.Port] = o
	}
	return m
}

func sortChanges(c []PortChange) {
	sort.Slice(c, func(i, j int) bool { return c[i].Port < c[j].Port })
}
