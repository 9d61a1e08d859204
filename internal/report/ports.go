package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/portprobe/internal/models"
)

// WriteMarkdown generates a markdown report for a scan and writes it to the
// specified output path.
func WriteMarkdown(r *models.ScanReport, outputPath string) error {
	var b strings.Builder
	open, closed, errored := r.Counts()

	// Header
	b.WriteString("# Port Scan Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s", r.Host))
	if r.Address != "" && r.Address != r.Host {
		b.WriteString(fmt.Sprintf(" (%s)", r.Address))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("**Started:** %s\n", r.StartedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("**Requested:** %d | **Open:** %d | **Closed:** %d | **Failed:** %d\n\n",
		r.Requested, open, closed, errored))

	if r.Cancelled {
		b.WriteString(fmt.Sprintf("> Scan was cancelled after %d of %d ports.\n\n", len(r.Outcomes), r.Requested))
	}

	// Open ports
	b.WriteString("## Open Ports\n\n")
	if openPorts := r.Open(); len(openPorts) > 0 {
		b.WriteString("| Port | Service | Banner | Latency |\n")
		b.WriteString("|------|---------|--------|---------|\n")
		for _, o := range openPorts {
			b.WriteString(fmt.Sprintf("| %d | %s | %s | %dms |\n", o.Port, o.Service, escapeCell(o.Banner), o.LatencyMillis))
		}
	} else {
		b.WriteString("No open ports discovered.\n")
	}
	b.WriteString("\n")

	// Failures
	b.WriteString("## Failed Probes\n\n")
	if errored > 0 {
		b.WriteString("| Port | Error |\n")
		b.WriteString("|------|-------|\n")
		for _, o := range r.Outcomes {
			if o.Status == models.ProbeError {
				b.WriteString(fmt.Sprintf("| %d | %s |\n", o.Port, escapeCell(o.Error)))
			}
		}
	} else {
		b.WriteString("None.\n")
	}
	b.WriteString("\n")

	// Summary
	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- **Ports requested:** %d\n", r.Requested))
	b.WriteString(fmt.Sprintf("- **Ports finished:** %d\n", len(r.Outcomes)))
	b.WriteString(fmt.Sprintf("- **Closed:** %d\n", closed))
	b.WriteString(fmt.Sprintf("- **Elapsed:** %s\n", r.Elapsed.Round(time.Millisecond)))

	return writeFile(outputPath, b.String())
}

// escapeCell keeps banners from breaking the table layout
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "<br>")
}
