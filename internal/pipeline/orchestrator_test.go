package pipeline

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hakim/portprobe/internal/engine"
	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/scanlog"
	"github.com/hakim/portprobe/internal/target"
)

type fakeStore struct {
	saved    map[string]models.ScanMeta
	reports  map[string]*models.ScanReport
	statuses []models.ScanStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:   make(map[string]models.ScanMeta),
		reports: make(map[string]*models.ScanReport),
	}
}

func (f *fakeStore) SaveScan(meta *models.ScanMeta) error {
	f.saved[meta.ID] = *meta
	return nil
}

func (f *fakeStore) UpdateScanStatus(id string, status models.ScanStatus) error {
	f.statuses = append(f.statuses, status)
	m := f.saved[id]
	m.Status = status
	f.saved[id] = m
	return nil
}

func (f *fakeStore) SaveReport(r *models.ScanReport) error {
	f.reports[r.ID] = r
	return nil
}

type failingResolver struct{}

func (failingResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type staticResolver []net.IPAddr

func (r staticResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return r, nil
}

func fixedProbe(open map[int]string) engine.ProbeFunc {
	return func(ctx context.Context, host string, port int) (models.ProbeOutcome, error) {
		if banner, ok := open[port]; ok {
			return models.ProbeOutcome{Port: port, Status: models.ProbeOpen, Service: "Unknown", Banner: banner}, nil
		}
		return models.ProbeOutcome{Port: port, Status: models.ProbeClosed, Service: "Unknown"}, nil
	}
}

func TestRunScan_Complete(t *testing.T) {
	store := newFakeStore()
	var console strings.Builder
	var seen []int

	cfg := ScanConfig{
		Target:    target.New("127.0.0.1", []int{443, 22, 80}),
		PortSpec:  "22,80,443",
		BaseDir:   t.TempDir(),
		ProbeFunc: fixedProbe(map[int]string{22: "SSH-2.0-test"}),
		OnOutcome: func(o models.ProbeOutcome) { seen = append(seen, o.Port) },
	}

	result, err := RunScan(context.Background(), cfg, store, scanlog.New(&console, nil))
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}

	if result.Status != models.StatusComplete {
		t.Errorf("status = %s, want complete", result.Status)
	}
	if !result.Report.Complete() {
		t.Errorf("report not complete: %+v", result.Report)
	}
	if result.Report.ID != result.ScanID {
		t.Errorf("report ID %q does not match scan ID %q", result.Report.ID, result.ScanID)
	}
	if len(seen) != 3 {
		t.Errorf("OnOutcome called %d times, want 3", len(seen))
	}
	if len(result.ExportErrors) != 0 {
		t.Errorf("unexpected export errors: %v", result.ExportErrors)
	}

	for _, p := range []string{result.TextPath, result.MarkdownPath, result.RawPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("export %q missing: %v", p, err)
		}
	}
	text, err := os.ReadFile(result.TextPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(text), "Port 22 (Unknown) is OPEN - Banner: SSH-2.0-test") {
		t.Errorf("text report missing open port line:\n%s", text)
	}

	meta := store.saved[result.ScanID]
	if meta.Status != models.StatusComplete || meta.Requested != 3 || meta.OpenCount != 1 {
		t.Errorf("stored meta = %+v", meta)
	}
	if meta.PortSpec != "22,80,443" {
		t.Errorf("PortSpec = %q", meta.PortSpec)
	}
	if store.reports[result.ScanID] == nil {
		t.Error("report was not stored")
	}
	if !strings.Contains(console.String(), "[+] Port 22 (Unknown) is OPEN") {
		t.Errorf("console missing progress line:\n%s", console.String())
	}
}

func TestRunScan_CancelledStillExports(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fn := func(ctx context.Context, host string, port int) (models.ProbeOutcome, error) {
		if port == 1 {
			return models.ProbeOutcome{Port: port, Status: models.ProbeClosed, Service: "Unknown"}, nil
		}
		<-ctx.Done()
		return models.ProbeOutcome{}, ctx.Err()
	}

	tgt := target.New("127.0.0.1", []int{1, 2, 3, 4})
	tgt.Concurrency = 2
	cfg := ScanConfig{
		Target:      tgt,
		BaseDir:     t.TempDir(),
		ProbeFunc:   fn,
		GracePeriod: 500 * time.Millisecond,
		OnOutcome:   func(models.ProbeOutcome) { cancel() },
	}

	result, err := RunScan(ctx, cfg, store, nil)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Status != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", result.Status)
	}
	if !result.Report.Cancelled || len(result.Report.Outcomes) != 1 {
		t.Errorf("report = %+v, want one outcome and Cancelled", result.Report)
	}
	if result.TextPath == "" {
		t.Error("partial report was not exported")
	}
	if got := store.saved[result.ScanID].Status; got != models.StatusCancelled {
		t.Errorf("stored status = %s, want cancelled", got)
	}
}

func TestRunScan_ResolveFaultMarksFailed(t *testing.T) {
	store := newFakeStore()
	cfg := ScanConfig{
		Target:    target.New("nothing.invalid", []int{80}),
		BaseDir:   t.TempDir(),
		Resolver:  failingResolver{},
		ProbeFunc: fixedProbe(nil),
	}

	_, err := RunScan(context.Background(), cfg, store, nil)
	var fault *engine.EngineFault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v, want EngineFault", err)
	}
	if len(store.statuses) != 1 || store.statuses[0] != models.StatusFailed {
		t.Errorf("statuses = %v, want [failed]", store.statuses)
	}
}

func TestRunScan_RejectsBeforeScanning(t *testing.T) {
	base := t.TempDir()
	called := false
	fn := func(ctx context.Context, host string, port int) (models.ProbeOutcome, error) {
		called = true
		return models.ProbeOutcome{Port: port, Status: models.ProbeClosed}, nil
	}

	tests := []struct {
		name string
		cfg  ScanConfig
	}{
		{"invalid target", ScanConfig{Target: target.New("127.0.0.1", nil)}},
		{"out of scope", ScanConfig{
			Target: target.New("10.1.2.3", []int{80}),
			Scope:  &ScopeConfig{AllowedCIDRs: []string{"192.168.0.0/16"}},
		}},
		{"hostname resolving outside CIDR scope", ScanConfig{
			Target:   target.New("outside.example.com", []int{80}),
			Scope:    &ScopeConfig{AllowedCIDRs: []string{"192.168.0.0/16"}},
			Resolver: staticResolver{{IP: net.ParseIP("8.8.8.8")}},
		}},
		{"hostname matching domain but resolving outside CIDR scope", ScanConfig{
			Target: target.New("db.lab.example", []int{80}),
			Scope: &ScopeConfig{
				AllowedDomains: []string{"*.lab.example"},
				AllowedCIDRs:   []string{"192.168.0.0/16"},
			},
			Resolver: staticResolver{{IP: net.ParseIP("8.8.8.8")}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.BaseDir = base
			tt.cfg.ProbeFunc = fn
			store := newFakeStore()
			if _, err := RunScan(context.Background(), tt.cfg, store, nil); err == nil {
				t.Fatal("expected error")
			}
			if len(store.saved) != 0 {
				t.Error("scan record created for rejected input")
			}
		})
	}
	if called {
		t.Error("probe ran for rejected input")
	}
	entries, _ := os.ReadDir(base)
	if len(entries) != 0 {
		t.Errorf("scan directories created for rejected input: %d", len(entries))
	}
}

func TestRunScan_HostnameInsideCIDRScope(t *testing.T) {
	var dialed []string
	fn := func(ctx context.Context, host string, port int) (models.ProbeOutcome, error) {
		dialed = append(dialed, host)
		return models.ProbeOutcome{Port: port, Status: models.ProbeClosed, Service: "Unknown"}, nil
	}
	cfg := ScanConfig{
		Target:    target.New("printer.lan", []int{80}),
		BaseDir:   t.TempDir(),
		Scope:     &ScopeConfig{AllowedCIDRs: []string{"192.168.0.0/16"}},
		Resolver:  staticResolver{{IP: net.ParseIP("192.168.1.20")}},
		ProbeFunc: fn,
	}
	result, err := RunScan(context.Background(), cfg, newFakeStore(), nil)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Report.Address != "192.168.1.20" || len(dialed) != 1 || dialed[0] != "192.168.1.20" {
		t.Errorf("address=%s dialed=%v", result.Report.Address, dialed)
	}
}

func TestRunScan_NilStore(t *testing.T) {
	cfg := ScanConfig{
		Target:    target.New("127.0.0.1", []int{80}),
		BaseDir:   t.TempDir(),
		ProbeFunc: fixedProbe(nil),
	}
	result, err := RunScan(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Status != models.StatusComplete {
		t.Errorf("status = %s", result.Status)
	}
}
