// Package report renders finished scan reports for people and machines.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/storage"
)

// TextFileName is the export file name for a host scanned at t.
func TextFileName(host string, t time.Time) string {
	return fmt.Sprintf("scan_results_%s_%s.txt", storage.SanitizeTarget(host), t.Format("20060102_150405"))
}

// Line renders one outcome the way it appears in the text export and the log.
func Line(o models.ProbeOutcome) string {
	switch o.Status {
	case models.ProbeOpen:
		return fmt.Sprintf("Port %d (%s) is OPEN - Banner: %s", o.Port, o.Service, o.Banner)
	case models.ProbeClosed:
		return fmt.Sprintf("Port %d is CLOSED", o.Port)
	default:
		return fmt.Sprintf("Port %d scan failed: %s", o.Port, o.Error)
	}
}

// RenderText produces the plain-text record of a report: host, date, one line
// per port in ascending order and a completion summary.
func RenderText(r *models.ScanReport, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Network Scan Results for %s\n", r.Host)
	fmt.Fprintf(&b, "Date: %s\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("-", 50) + "\n\n")

	for _, o := range r.Outcomes {
		b.WriteString(Line(o) + "\n")
	}

	open, closed, errored := r.Counts()
	fmt.Fprintf(&b, "\n%d open, %d closed, %d failed of %d requested\n", open, closed, errored, r.Requested)
	fmt.Fprintf(&b, "Scan completed in %.2f seconds\n", r.Elapsed.Seconds())
	if r.Cancelled {
		fmt.Fprintf(&b, "\nScan cancelled: %d of %d ports finished.\n", len(r.Outcomes), r.Requested)
	} else {
		b.WriteString("\nScan completed.\n")
	}
	return b.String()
}

// WriteText writes the plain-text record of r to path.
func WriteText(r *models.ScanReport, path string) error {
	return writeFile(path, RenderText(r, time.Now()))
}
