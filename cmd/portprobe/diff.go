package main

import (
	"fmt"
	"path/filepath"

	"github.com/hakim/portprobe/internal/diff"
	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/report"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two scans of a host and report what changed",
	Long: `Compare the latest scan of a host against the one before it.

Ports that became open, ports that stopped being open and open ports whose
banner changed are listed. Ports that were open before but were not probed in
the current scan are listed as not rescanned, never as closed.

Only complete scans are picked automatically; failed and cancelled scans are
skipped. Use --scan and --compare to pick the two scans explicitly (full IDs
or prefixes); a cancelled scan chosen that way makes the diff partial.

Results are saved to the current scan's directory:
  - reports/diff.md   (markdown change report)
  - raw/diff.json     (structured diff JSON)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("target")
		currentID, _ := cmd.Flags().GetString("scan")
		previousID, _ := cmd.Flags().GetString("compare")

		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		// ── 1. Pick the two scans ──────────────────────────────────────────────
		current, previous, err := pickDiffScans(store, host, currentID, previousID)
		if err != nil {
			return err
		}
		if previous == nil {
			fmt.Printf("[!] No previous scan of %s found for comparison\n", host)
			return nil
		}

		fmt.Printf("[*] Current scan:  %s (%s)\n", current.ID, current.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("[*] Previous scan: %s (%s)\n", previous.ID, previous.StartedAt.Local().Format("2006-01-02 15:04:05"))

		// ── 2. Compute and write ───────────────────────────────────────────────
		result := diff.Compute(current, previous)

		meta, err := store.GetScan(current.ID)
		if err != nil || meta == nil || meta.ScanDir == "" {
			fmt.Printf("[!] Warning: scan directory for %s unknown, diff not written to disk\n", current.ID)
		} else {
			diffPath := filepath.Join(storage.ReportsDir(meta.ScanDir), "diff.md")
			if err := report.WriteDiff(result, diffPath); err != nil {
				fmt.Printf("[!] Warning: failed to write diff report: %v\n", err)
			} else {
				fmt.Printf("[+] Diff report written to %s\n", diffPath)
			}

			rawPath := filepath.Join(storage.RawDir(meta.ScanDir), "diff.json")
			if err := report.WriteJSON(result, rawPath); err != nil {
				fmt.Printf("[!] Warning: failed to write diff JSON: %v\n", err)
			} else {
				fmt.Printf("[+] Diff JSON written to %s\n", rawPath)
			}
		}

		// ── 3. Summary ─────────────────────────────────────────────────────────
		fmt.Println()
		if result.Partial {
			fmt.Println("[!] Partial comparison: at least one scan was cancelled")
		}
		if len(result.NotRescanned) > 0 {
			fmt.Printf("[!] Not rescanned: %s\n", portList(result.NotRescanned))
		}
		if result.Empty() {
			fmt.Println("[+] No changes detected.")
			return nil
		}
		fmt.Printf("[+] Diff complete!\n")
		fmt.Printf("    Open ports:     %d -> %d\n", result.PreviousOpenCount, result.CurrentOpenCount)
		fmt.Printf("    Newly open:     %s\n", portList(result.NewlyOpen))
		fmt.Printf("    Newly closed:   %s\n", portList(result.NewlyClosed))
		fmt.Printf("    Banner changed: %s\n", portList(result.BannerChanged))

		return nil
	},
}

// pickDiffScans loads the current and previous reports. When IDs are not
// given it uses the two newest complete scans of host that stored a report.
// previous is nil when there is nothing to compare against.
func pickDiffScans(store *storage.Store, host, currentID, previousID string) (current, previous *models.ScanReport, err error) {
	if currentID != "" {
		if current, err = loadReport(store, host, currentID); err != nil {
			return nil, nil, err
		}
	}
	if previousID != "" {
		if previous, err = loadReport(store, host, previousID); err != nil {
			return nil, nil, err
		}
	}
	if current != nil && previous != nil {
		return current, previous, nil
	}

	scans, err := store.ListScans(host)
	if err != nil {
		return nil, nil, fmt.Errorf("listing scans for %s: %w", host, err)
	}
	for _, s := range scans {
		if s.Status != models.StatusComplete {
			continue
		}
		if (current != nil && s.ID == current.ID) || (previous != nil && s.ID == previous.ID) {
			continue
		}
		// an explicit --scan is only compared with older scans
		if currentID != "" && previous == nil && s.StartedAt.After(current.StartedAt) {
			continue
		}
		r, err := store.GetReport(s.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading report %s: %w", s.ID, err)
		}
		if r == nil {
			continue
		}
		if current == nil {
			current = r
		} else if previous == nil {
			previous = r
		}
		if current != nil && previous != nil {
			break
		}
	}

	if current == nil {
		return nil, nil, fmt.Errorf("no stored scans for %s. Run 'portprobe scan -t %s' first", host, host)
	}
	return current, previous, nil
}

func loadReport(store *storage.Store, host, idOrPrefix string) (*models.ScanReport, error) {
	id, err := resolveScanID(store, host, idOrPrefix)
	if err != nil {
		return nil, err
	}
	r, err := store.GetReport(id)
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("no report stored for scan %s", id)
	}
	return r, nil
}

func portList(changes []diff.PortChange) string {
	if len(changes) == 0 {
		return "-"
	}
	s := ""
	for i, c := range changes {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d/%s", c.Port, c.Service)
	}
	return s
}

func init() {
	diffCmd.Flags().StringP("target", "t", "", "Target host (required)")
	diffCmd.Flags().String("scan", "", "Scan ID to treat as current (default: latest)")
	diffCmd.Flags().String("compare", "", "Scan ID to compare against (default: the scan before it)")
	diffCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(diffCmd)
}
