package main

import (
	"fmt"
	"strings"

	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/report"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show SCAN_ID",
	Short: "Print a stored scan report",
	Long: `Re-render the text report of a stored scan.

SCAN_ID may be the full ID or a unique prefix of it as shown by 'portprobe
history'. With --target, only that host's scans are searched for a prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("target")

		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		id, err := resolveScanID(store, host, args[0])
		if err != nil {
			return err
		}

		r, err := store.GetReport(id)
		if err != nil {
			return fmt.Errorf("loading report %s: %w", id, err)
		}
		if r == nil {
			return fmt.Errorf("no report stored for scan %s (it may have failed before finishing)", id)
		}

		fmt.Print(report.RenderText(r, r.StartedAt))
		return nil
	},
}

// resolveScanID expands a prefix into a full scan ID. Exact IDs are returned
// as-is; prefixes are matched against host's history when host is set.
func resolveScanID(store *storage.Store, host, idOrPrefix string) (string, error) {
	idOrPrefix = strings.TrimSuffix(idOrPrefix, "...")

	meta, err := store.GetScan(idOrPrefix)
	if err != nil {
		return "", fmt.Errorf("looking up scan %s: %w", idOrPrefix, err)
	}
	if meta != nil {
		return meta.ID, nil
	}
	if host == "" {
		return "", fmt.Errorf("scan %s not found (use the full ID, or --target to match a prefix)", idOrPrefix)
	}

	scans, err := store.ListScans(host)
	if err != nil {
		return "", fmt.Errorf("listing scans for %s: %w", host, err)
	}
	var matches []*models.ScanMeta
	for _, s := range scans {
		if strings.HasPrefix(s.ID, idOrPrefix) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no scan of %s matches %q", host, idOrPrefix)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%q matches %d scans of %s, use a longer prefix", idOrPrefix, len(matches), host)
	}
}

func init() {
	showCmd.Flags().StringP("target", "t", "", "Host whose scans are searched when SCAN_ID is a prefix")
	rootCmd.AddCommand(showCmd)
}
