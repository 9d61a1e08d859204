package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/portprobe/internal/diff"
)

// WriteDiff generates a markdown report capturing the port delta between two
// scans of the same host and writes it to outputPath.
func WriteDiff(result *diff.DiffResult, outputPath string) error {
	return writeFile(outputPath, RenderDiff(result, time.Now()))
}

// RenderDiff renders the diff markdown.
func RenderDiff(result *diff.DiffResult, now time.Time) string {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Host:** %s\n", result.Host))
	b.WriteString(fmt.Sprintf("**Compared:** %s -> %s\n", shortID(result.PreviousID), shortID(result.CurrentID)))
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", now.UTC().Format("2006-01-02 15:04:05 UTC")))

	if result.Partial {
		b.WriteString("> **Partial comparison:** at least one scan was cancelled. Ports it did not finish are listed as not rescanned, never as closed.\n\n")
	}

	if result.Empty() {
		b.WriteString("No changes detected.\n\n")
		writeNotRescanned(&b, result.NotRescanned)
		return b.String()
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")
	b.WriteString(fmt.Sprintf("| Open Ports | %d | %d | %s |\n\n",
		result.PreviousOpenCount, result.CurrentOpenCount,
		formatChange(len(result.NewlyOpen), len(result.NewlyClosed))))

	writeChangeSection(&b, "Newly Open Ports", "+", result.NewlyOpen)
	writeChangeSection(&b, "Newly Closed Ports", "-", result.NewlyClosed)

	if len(result.BannerChanged) > 0 {
		b.WriteString(fmt.Sprintf("## Banner Changes (%d)\n\n", len(result.BannerChanged)))
		b.WriteString("| Port | Service | Before | After |\n")
		b.WriteString("|------|---------|--------|-------|\n")
		for _, c := range result.BannerChanged {
			b.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n",
				c.Port, c.Service, escapeCell(c.BannerBefore), escapeCell(c.BannerAfter)))
		}
		b.WriteString("\n")
	}

	writeNotRescanned(&b, result.NotRescanned)
	return b.String()
}

// writeNotRescanned lists previously open ports the current scan has no
// outcome for. Skipped when empty.
func writeNotRescanned(b *strings.Builder, changes []diff.PortChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## Not Rescanned (%d)\n\n", len(changes)))
	b.WriteString("Open in the previous scan, not probed in the current one.\n\n")
	b.WriteString("| Port | Service |\n")
	b.WriteString("|------|---------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %d | %s |\n", c.Port, c.Service))
	}
	b.WriteString("\n")
}

// writeChangeSection renders one state-change table. Skipped when empty.
func writeChangeSection(b *strings.Builder, title, sign string, changes []diff.PortChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(changes)))
	b.WriteString("| Port | Service | Before | After |\n")
	b.WriteString("|------|---------|--------|-------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", c.Port, c.Service, stateOrDash(string(c.Before)), stateOrDash(string(c.After))))
	}
	b.WriteString("\n")
}

// formatChange returns a human-readable change string such as "+3 / -1".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}

func stateOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// shortID returns the first 8 characters of a scan ID.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
