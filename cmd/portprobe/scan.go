package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hakim/portprobe/internal/config"
	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/pipeline"
	"github.com/hakim/portprobe/internal/probe"
	"github.com/hakim/portprobe/internal/scanlog"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/hakim/portprobe/internal/target"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan TCP ports of a host and grab service banners",
	Long: `Scan a set of TCP ports on one host.

Exactly one port selector is required: --common, --port, --range, --ports or
--preset. Every port ends up OPEN (with a banner), CLOSED, or failed with a
reason, and the report lists them in ascending port order.

Press Ctrl-C to stop early: ports already finished are still written out and
the scan is recorded as cancelled.

Results are saved to:
  {scan_dir}/{host}_{timestamp}/reports/   (text and markdown reports)
  {scan_dir}/{host}_{timestamp}/raw/       (structured JSON report)
  {log_dir}/scan_{timestamp}.log           (per-run log)

Examples:
  portprobe scan -t 192.168.1.10 --common
  portprobe scan -t example.com --range 1-1024 --concurrency 200
  portprobe scan -t example.com --ports 22,80,8000-8100 --timeout 0.5
  portprobe scan -t 10.0.0.5 --preset web --notify-webhook https://hooks.example/scan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Read all flags ──────────────────────────────────────────────────
		host, _ := cmd.Flags().GetString("target")
		sel := portSelection{}
		sel.common, _ = cmd.Flags().GetBool("common")
		sel.port, _ = cmd.Flags().GetInt("port")
		sel.portSet = cmd.Flags().Changed("port")
		sel.rng, _ = cmd.Flags().GetString("range")
		sel.spec, _ = cmd.Flags().GetString("ports")
		sel.preset, _ = cmd.Flags().GetString("preset")
		webhookURL, _ := cmd.Flags().GetString("notify-webhook")
		noStore, _ := cmd.Flags().GetBool("no-store")

		// ── 2. Build and validate the target before anything is created ───────
		ports, portSpec, err := sel.resolve()
		if err != nil {
			return err
		}

		t, tuning, err := buildTarget(cmd, cfg, host, ports)
		if err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid scan input:\n%w", err)
		}

		// ── 3. Logging ─────────────────────────────────────────────────────────
		log, err := scanlog.Open(cfg.LogDir, time.Now(), os.Stdout)
		if err != nil {
			fmt.Printf("[!] Warning: %v. Logging to console only\n", err)
			log = scanlog.New(os.Stdout, nil)
		}
		defer log.Close()
		if quiet {
			log.SetLevel(scanlog.LevelWarn)
		}

		// ── 4. Open bbolt store ────────────────────────────────────────────────
		// A nil *storage.Store must not leak into the interface.
		var store pipeline.StoreInterface
		if !noStore {
			s, err := storage.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer s.Close()
			store = s
		}

		// ── 5. Run the scan, cancelled by Ctrl-C ───────────────────────────────
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scope := &pipeline.ScopeConfig{
			AllowedDomains: cfg.Scope.AllowedDomains,
			AllowedCIDRs:   cfg.Scope.AllowedCIDRs,
		}

		log.Infof("Starting scan of %s (%s)", t.Host, portSpec)
		result, err := pipeline.RunScan(ctx, pipeline.ScanConfig{
			Target:      t,
			PortSpec:    portSpec,
			BaseDir:     cfg.ScanDir,
			Probe:       tuning.probe,
			GracePeriod: tuning.grace,
			Scope:       scope,
		}, store, log)
		if err != nil {
			log.Errorf("%v", err)
			return err
		}

		// ── 6. Webhook notification (non-fatal) ────────────────────────────────
		if webhookURL == "" {
			webhookURL = cfg.Notify.WebhookURL
		}
		if webhookURL != "" {
			notifyCfg := pipeline.NotifyConfig{WebhookURL: webhookURL}
			if notifyErr := notifyCfg.SendCompletion(result); notifyErr != nil {
				log.Warnf("Webhook notification failed: %v", notifyErr)
			} else {
				log.Successf("Completion notification sent to %s", webhookURL)
			}
		}

		// ── 7. Print final summary ─────────────────────────────────────────────
		printScanSummary(result, log.Path())
		return nil
	},
}

func init() {
	scanCmd.Flags().StringP("target", "t", "", "Target host, IP address or hostname (required)")
	scanCmd.Flags().Bool("common", false, "Scan the well-known service ports")
	scanCmd.Flags().Int("port", 0, "Scan a single port")
	scanCmd.Flags().String("range", "", "Scan an inclusive port range, e.g. 1-1024")
	scanCmd.Flags().String("ports", "", "Scan a port list with ranges, e.g. 22,80,8000-8100")
	scanCmd.Flags().String("preset", "", "Named port preset: "+strings.Join(pipeline.PresetNames(), ", "))
	scanCmd.Flags().Float64("timeout", 0, "Connect timeout in seconds (default from config, 2)")
	scanCmd.Flags().Float64("banner-timeout", 0, "Banner read timeout in seconds (default: connect timeout)")
	scanCmd.Flags().Int("concurrency", 0, "Maximum probes in flight (default from config, 50)")
	scanCmd.Flags().Bool("timeout-as-error", false, "Report connect timeouts as errors instead of CLOSED")
	scanCmd.Flags().String("notify-webhook", "", "HTTP webhook URL to POST a completion summary to")
	scanCmd.Flags().Bool("no-store", false, "Do not record the scan in the database")

	scanCmd.MarkFlagRequired("target")
	scanCmd.MarkFlagsMutuallyExclusive("common", "port", "range", "ports", "preset")

	rootCmd.AddCommand(scanCmd)
}

// ── Port selection ────────────────────────────────────────────────────────────

// portSelection holds the mutually exclusive port selector flags.
type portSelection struct {
	common  bool
	port    int
	portSet bool
	rng     string
	spec    string
	preset  string
}

// resolve expands the single chosen selector into ports plus a label for the
// scan history.
func (s portSelection) resolve() ([]int, string, error) {
	chosen := 0
	for _, set := range []bool{s.common, s.portSet, s.rng != "", s.spec != "", s.preset != ""} {
		if set {
			chosen++
		}
	}
	switch {
	case chosen == 0:
		return nil, "", fmt.Errorf("no ports selected: use one of --common, --port, --range, --ports or --preset")
	case chosen > 1:
		return nil, "", fmt.Errorf("only one of --common, --port, --range, --ports or --preset may be used")
	}

	switch {
	case s.common:
		return target.Common(), "common", nil
	case s.portSet:
		ports, err := target.Single(s.port)
		return ports, strconv.Itoa(s.port), err
	case s.rng != "":
		ports, err := target.ParseRange(s.rng)
		return ports, s.rng, err
	case s.spec != "":
		ports, err := target.ParseSpec(s.spec)
		return ports, s.spec, err
	default:
		p, err := pipeline.GetPreset(s.preset)
		if err != nil {
			return nil, "", err
		}
		ports, err := p.Ports()
		return ports, "preset:" + p.Name, err
	}
}

// ── Target tuning ─────────────────────────────────────────────────────────────

type scanTuning struct {
	probe probe.Options
	grace time.Duration
}

// buildTarget merges config values with flags; flags win when set.
func buildTarget(cmd *cobra.Command, c *config.Config, host string, ports []int) (target.Target, scanTuning, error) {
	t := target.New(host, ports)
	var tuning scanTuning

	connect, err := c.Scan.ConnectTimeout()
	if err != nil {
		return t, tuning, err
	}
	read, err := c.Scan.ReadTimeout()
	if err != nil {
		return t, tuning, err
	}
	if tuning.grace, err = c.Scan.Grace(); err != nil {
		return t, tuning, err
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		secs, _ := flags.GetFloat64("timeout")
		connect = seconds(secs)
		if !flags.Changed("banner-timeout") && c.Scan.BannerTimeout == "" {
			read = connect
		}
	}
	if flags.Changed("banner-timeout") {
		secs, _ := flags.GetFloat64("banner-timeout")
		read = seconds(secs)
	}

	t.ConnectTimeout = connect
	t.BannerTimeout = read
	t.Concurrency = c.Scan.Concurrency
	if flags.Changed("concurrency") {
		t.Concurrency, _ = flags.GetInt("concurrency")
	}

	tuning.probe = probe.Options{
		ConnectTimeout: t.ConnectTimeout,
		BannerTimeout:  t.ReadTimeout(),
		BannerBytes:    c.Scan.BannerBytes,
		TimeoutAsError: c.Scan.TimeoutAsError,
	}
	if flags.Changed("timeout-as-error") {
		tuning.probe.TimeoutAsError, _ = flags.GetBool("timeout-as-error")
	}
	return t, tuning, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ── Output ────────────────────────────────────────────────────────────────────

func printScanSummary(result *pipeline.ScanResult, logPath string) {
	r := result.Report
	open, closed, errored := r.Counts()

	fmt.Println()
	if result.Status == models.StatusCancelled {
		fmt.Printf("[!] Scan cancelled: %d of %d ports finished\n", len(r.Outcomes), r.Requested)
	} else {
		fmt.Printf("[+] Scan complete!\n")
	}
	fmt.Printf("    Target:    %s (%s)\n", r.Host, r.Address)
	fmt.Printf("    Scan ID:   %s\n", result.ScanID)
	fmt.Printf("    Ports:     %d open, %d closed, %d failed\n", open, closed, errored)
	fmt.Printf("    Elapsed:   %.2f seconds\n", r.Elapsed.Seconds())
	fmt.Printf("    Scan dir:  %s\n", result.ScanDir)
	if result.TextPath != "" {
		fmt.Printf("    Report:    %s\n", result.TextPath)
	}
	if logPath != "" {
		fmt.Printf("    Log:       %s\n", logPath)
	}

	if len(result.ExportErrors) > 0 {
		fmt.Println()
		fmt.Println("[!] Export errors:")
		for name, msg := range result.ExportErrors {
			fmt.Printf("    %-10s %s\n", name+":", msg)
		}
	}

	if openPorts := r.Open(); len(openPorts) > 0 {
		fmt.Println()
		fmt.Println("Open ports:")
		for _, o := range openPorts {
			fmt.Printf("    %-6d %-10s %s\n", o.Port, o.Service, o.Banner)
		}
	}
}
