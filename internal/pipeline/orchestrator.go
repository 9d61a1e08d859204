package pipeline

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/hakim/portprobe/internal/engine"
	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/probe"
	"github.com/hakim/portprobe/internal/report"
	"github.com/hakim/portprobe/internal/scanlog"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/hakim/portprobe/internal/target"
)

// StoreInterface is the minimal bbolt contract required by the orchestrator.
// Using an interface keeps the package testable without a real database.
type StoreInterface interface {
	SaveScan(meta *models.ScanMeta) error
	UpdateScanStatus(id string, status models.ScanStatus) error
	SaveReport(report *models.ScanReport) error
}

// ScanConfig controls how RunScan behaves for a single run.
type ScanConfig struct {
	// Target is the host, port set and tuning for this run. Required.
	Target target.Target

	// PortSpec is the human-readable port selection recorded in history.
	PortSpec string

	// BaseDir is where a new scan directory is created when ScanDir is empty.
	BaseDir string

	// ScanDir is the directory to use for all output.
	// If empty, a new directory is created via storage.CreateScanDir.
	ScanDir string

	// Probe tunes the prober. Timeouts left zero are taken from Target.
	Probe probe.Options

	// GracePeriod bounds how long a cancelled run waits for in-flight probes.
	GracePeriod time.Duration

	// Scope restricts which hosts may be scanned. Nil allows any host.
	Scope *ScopeConfig

	// Resolver overrides host resolution. Nil means net.DefaultResolver.
	Resolver engine.Resolver

	// ProbeFunc replaces the TCP prober. Nil means probe.New(Probe).Probe.
	ProbeFunc engine.ProbeFunc

	// OnOutcome is called once for every recorded port, after it is logged.
	OnOutcome func(models.ProbeOutcome)
}

// ScanResult summarises what happened after RunScan returns.
type ScanResult struct {
	// ScanID is the bbolt record ID created for this run.
	ScanID string

	// ScanDir is the directory that holds all output.
	ScanDir string

	// Report is the engine's report, complete or partial.
	Report *models.ScanReport

	// Status is StatusComplete, or StatusCancelled for a partial report.
	Status models.ScanStatus

	// TextPath, MarkdownPath and RawPath locate the exported files. A path is
	// empty when its export failed.
	TextPath     string
	MarkdownPath string
	RawPath      string

	// ExportErrors maps export name to error message for every failed write.
	ExportErrors map[string]string
}

// RunScan runs one port scan end to end.
//
// The bbolt record is created (StatusRunning) before the engine starts and
// updated to StatusComplete, StatusCancelled or StatusFailed once it returns.
// A cancelled ctx still produces a result: the partial report is exported and
// stored like a complete one. Export failures are recorded in ExportErrors and
// never fail the run. store may be nil, in which case nothing is persisted.
func RunScan(ctx context.Context, cfg ScanConfig, store StoreInterface, log *scanlog.Logger) (*ScanResult, error) {

	// ── 1. Validate inputs before touching the filesystem ────────────────────
	t := cfg.Target
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scope.ValidateHost(t.Host); err != nil {
		return nil, fmt.Errorf("scope check failed: %w", err)
	}
	if len(cfg.Scope.cidrs()) > 0 && net.ParseIP(t.Host) == nil {
		addr, err := engine.Resolve(ctx, cfg.Resolver, t.Host)
		if err != nil {
			return nil, fmt.Errorf("scope check failed: %w", &engine.EngineFault{Op: "resolve", Err: err})
		}
		if err := cfg.Scope.ValidateAddress(addr); err != nil {
			return nil, fmt.Errorf("scope check failed: %s resolves to %s: %w", t.Host, addr, err)
		}
	}
	if !cfg.Scope.Empty() {
		log.Infof("Scope validated: %s is in scope", t.Host)
	}

	// ── 2. Resolve or create the scan directory ──────────────────────────────
	startedAt := time.Now()
	scanDir := cfg.ScanDir
	if scanDir == "" {
		var err error
		scanDir, err = storage.CreateScanDir(cfg.BaseDir, t.Host, startedAt)
		if err != nil {
			return nil, fmt.Errorf("pipeline: creating scan directory: %w", err)
		}
		log.Infof("Created scan directory: %s", scanDir)
	} else {
		for _, dir := range []string{storage.ReportsDir(scanDir), storage.RawDir(scanDir)} {
			if err := storage.EnsureDir(dir); err != nil {
				return nil, fmt.Errorf("pipeline: preparing scan directory: %w", err)
			}
		}
	}

	// ── 3. Create the bbolt scan record ──────────────────────────────────────
	meta := models.NewScan(t.Host, cfg.PortSpec)
	meta.ScanDir = scanDir
	meta.Requested = len(t.Ports)
	meta.Status = models.StatusRunning
	if store != nil {
		if err := store.SaveScan(meta); err != nil {
			return nil, fmt.Errorf("pipeline: saving initial scan record: %w", err)
		}
	}
	log.Infof("Scan ID: %s", meta.ID)

	// ── 4. Run the engine ────────────────────────────────────────────────────
	// The engine resolves again; the address it dials is checked too.
	eng := engine.New(cfg.probeFunc(t), engine.Options{
		GracePeriod:  cfg.GracePeriod,
		Resolver:     cfg.Resolver,
		CheckAddress: cfg.Scope.ValidateAddress,
		OnOutcome: func(o models.ProbeOutcome) {
			logOutcome(log, o)
			if cfg.OnOutcome != nil {
				cfg.OnOutcome(o)
			}
		},
	})

	log.Infof("Scanning %s: %d ports, concurrency %d, timeout %s",
		t.Host, len(t.Ports), t.Concurrency, t.ConnectTimeout)

	rep, err := eng.Run(ctx, t)
	if err != nil {
		markFailed(store, meta, log)
		return nil, fmt.Errorf("scan of %s failed: %w", t.Host, err)
	}
	rep.ID = meta.ID

	result := &ScanResult{
		ScanID:       meta.ID,
		ScanDir:      scanDir,
		Report:       rep,
		Status:       models.StatusComplete,
		ExportErrors: make(map[string]string),
	}
	if rep.Cancelled {
		result.Status = models.StatusCancelled
		log.Warnf("Scan cancelled: %d of %d ports finished", len(rep.Outcomes), rep.Requested)
	}

	// ── 5. Export reports (non-fatal) ────────────────────────────────────────
	exports := []struct {
		name  string
		path  string
		dest  *string
		write func(string) error
	}{
		{"text", filepath.Join(storage.ReportsDir(scanDir), report.TextFileName(t.Host, startedAt)), &result.TextPath,
			func(p string) error { return report.WriteText(rep, p) }},
		{"markdown", filepath.Join(storage.ReportsDir(scanDir), "ports.md"), &result.MarkdownPath,
			func(p string) error { return report.WriteMarkdown(rep, p) }},
		{"json", filepath.Join(storage.RawDir(scanDir), "report.json"), &result.RawPath,
			func(p string) error { return report.WriteJSON(rep, p) }},
	}
	for _, ex := range exports {
		if err := ex.write(ex.path); err != nil {
			result.ExportErrors[ex.name] = err.Error()
			log.Warnf("Could not write %s report: %v", ex.name, err)
			continue
		}
		*ex.dest = ex.path
	}

	// ── 6. Persist the report and the final status ───────────────────────────
	open, _, _ := rep.Counts()
	meta.OpenCount = open
	if store != nil {
		if err := store.SaveReport(rep); err != nil {
			log.Warnf("Could not store report: %v", err)
		}
		if err := store.SaveScan(meta); err != nil {
			log.Warnf("Could not update scan record: %v", err)
		}
		if err := store.UpdateScanStatus(meta.ID, result.Status); err != nil {
			log.Warnf("Could not update final scan status: %v", err)
		}
	}

	log.Successf("Scan finished in %s: %d open of %d scanned (status: %s)",
		rep.Elapsed.Round(time.Millisecond), open, len(rep.Outcomes), result.Status)

	return result, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// probeFunc returns the injected probe or a TCP prober tuned from the target.
func (cfg ScanConfig) probeFunc(t target.Target) engine.ProbeFunc {
	if cfg.ProbeFunc != nil {
		return cfg.ProbeFunc
	}
	opts := cfg.Probe
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = t.ConnectTimeout
	}
	if opts.BannerTimeout <= 0 {
		opts.BannerTimeout = t.ReadTimeout()
	}
	return probe.New(opts).Probe
}

// logOutcome writes one progress line. Open ports are highlighted.
func logOutcome(log *scanlog.Logger, o models.ProbeOutcome) {
	switch o.Status {
	case models.ProbeOpen:
		log.Successf("%s", report.Line(o))
	case models.ProbeError:
		log.Warnf("%s", report.Line(o))
	default:
		log.Infof("%s", report.Line(o))
	}
}

// markFailed records a fatal run. Failures here are only logged.
func markFailed(store StoreInterface, meta *models.ScanMeta, log *scanlog.Logger) {
	if store == nil {
		return
	}
	if err := store.UpdateScanStatus(meta.ID, models.StatusFailed); err != nil {
		log.Warnf("Could not mark scan %s as failed: %v", meta.ID, err)
	}
}
