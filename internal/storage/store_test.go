package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hakim/portprobe/internal/models"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "portprobe.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndListScans(t *testing.T) {
	s := openStore(t)

	older := models.NewScan("10.0.0.5", "1-1024")
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := models.NewScan("10.0.0.5", "22")
	other := models.NewScan("10.0.0.6", "22")

	for _, m := range []*models.ScanMeta{older, newer, other} {
		if err := s.SaveScan(m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// saving twice must not duplicate the index entry
	if err := s.SaveScan(newer); err != nil {
		t.Fatalf("resave: %v", err)
	}

	scans, err := s.ListScans("10.0.0.5")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scans) != 2 || scans[0].ID != newer.ID || scans[1].ID != older.ID {
		t.Fatalf("unexpected scans: %+v", scans)
	}

	latest, err := s.GetLatestScan("10.0.0.5")
	if err != nil || latest == nil || latest.ID != newer.ID {
		t.Fatalf("latest = %+v, %v", latest, err)
	}

	none, err := s.GetLatestScan("192.0.2.1")
	if err != nil || none != nil {
		t.Fatalf("expected no scans, got %+v, %v", none, err)
	}
}

func TestUpdateScanStatus(t *testing.T) {
	s := openStore(t)
	meta := models.NewScan("127.0.0.1", "common")
	if err := s.SaveScan(meta); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateScanStatus(meta.ID, models.StatusRunning); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetScan(meta.ID)
	if got.Status != models.StatusRunning || got.CompletedAt != nil {
		t.Fatalf("running scan: %+v", got)
	}

	if err := s.UpdateScanStatus(meta.ID, models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetScan(meta.ID)
	if got.Status != models.StatusCancelled || got.CompletedAt == nil {
		t.Fatalf("cancelled scan should be completed: %+v", got)
	}

	if err := s.UpdateScanStatus("missing", models.StatusComplete); err != nil {
		t.Fatalf("unknown id should be a no-op, got %v", err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := openStore(t)
	report := &models.ScanReport{
		ID:        "abc",
		Host:      "127.0.0.1",
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Elapsed:   1500 * time.Millisecond,
		Requested: 2,
		Outcomes: []models.ProbeOutcome{
			{Port: 22, Status: models.ProbeOpen, Service: "SSH", Banner: models.BannerNone},
			{Port: 80, Status: models.ProbeClosed, Service: "HTTP"},
		},
	}
	if err := s.SaveReport(report); err != nil {
		t.Fatalf("save report: %v", err)
	}
	got, err := s.GetReport("abc")
	if err != nil || got == nil {
		t.Fatalf("get report: %+v, %v", got, err)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[0].Banner != models.BannerNone || got.Elapsed != report.Elapsed {
		t.Fatalf("report did not survive storage: %+v", got)
	}

	if err := s.SaveReport(&models.ScanReport{}); err == nil {
		t.Fatal("report without ID should be rejected")
	}
	if missing, err := s.GetReport("nope"); err != nil || missing != nil {
		t.Fatalf("missing report: %+v, %v", missing, err)
	}
}

func TestCreateScanDir(t *testing.T) {
	base := t.TempDir()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	dir, err := CreateScanDir(base, "fe80::1", started)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(dir) != "fe80_1_20260102_030405" {
		t.Fatalf("unexpected dir name %s", filepath.Base(dir))
	}
	for _, sub := range []string{ReportsDir(dir), RawDir(dir)} {
		if info, err := os.Stat(sub); err != nil || !info.IsDir() {
			t.Fatalf("missing %s: %v", sub, err)
		}
	}
}
