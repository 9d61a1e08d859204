package main

import (
	"fmt"

	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show scan history for a host",
	Long: `Display a formatted table of past scans for a target host.

Scans are listed newest-first. Each row shows the scan ID (truncated), start time,
final status, how many ports were requested and how many were open.

Use --limit to cap the number of rows shown (default: 10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("target")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		// sorted newest-first by store.ListScans
		scans, err := store.ListScans(host)
		if err != nil {
			return fmt.Errorf("listing scans for %s: %w", host, err)
		}

		if len(scans) == 0 {
			fmt.Printf("No scan history found for %s\n", host)
			return nil
		}

		if limit > 0 && len(scans) > limit {
			scans = scans[:limit]
		}

		const separator = "────────────────────────────────────────────────────────────────────────"

		fmt.Printf("\nScan History for %s\n", host)
		fmt.Println(separator)
		fmt.Printf("  %-3s  %-12s  %-20s  %-10s  %-6s  %-5s  %s\n", "#", "Scan ID", "Started", "Status", "Ports", "Open", "Selection")
		fmt.Println(separator)

		for i, scan := range scans {
			fmt.Printf("  %-3d  %-12s  %-20s  %-10s  %-6d  %-5d  %s\n",
				i+1,
				shortScanID(scan.ID),
				scan.StartedAt.UTC().Format("2006-01-02 15:04"),
				formatStatus(scan.Status),
				scan.Requested,
				scan.OpenCount,
				orDash(scan.PortSpec))
		}

		fmt.Println(separator)
		fmt.Printf("Total: %d scan(s)\n\n", len(scans))

		return nil
	},
}

// shortScanID returns the first 8 characters of a UUID followed by "..." for
// compact table display. Falls back to the full ID when shorter than 8 chars.
func shortScanID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// formatStatus converts a ScanStatus to a consistent lowercase display string.
func formatStatus(s models.ScanStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	historyCmd.Flags().StringP("target", "t", "", "Target host (required)")
	historyCmd.Flags().Int("limit", 10, "Maximum number of scans to display")
	historyCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(historyCmd)
}
