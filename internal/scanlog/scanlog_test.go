package scanlog

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	started := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

	l, err := Open(dir, started, &console)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.HasSuffix(l.Path(), "scan_20260301_140509.log") {
		t.Fatalf("unexpected log path %s", l.Path())
	}
	l.Infof("Port %d is CLOSED", 80)
	l.Warnf("export failed: %s", "disk full")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := console.String(); !strings.Contains(got, "[*] Port 80 is CLOSED") || !strings.Contains(got, "[!] export failed: disk full") {
		t.Fatalf("console output = %q", got)
	}
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "INFO - Port 80 is CLOSED") || !strings.Contains(string(data), "WARN - export failed") {
		t.Fatalf("log file = %q", data)
	}
}

func TestLoggerLevelAndNil(t *testing.T) {
	var console bytes.Buffer
	l := New(&console, nil)
	l.SetLevel(LevelWarn)
	l.Infof("hidden")
	l.Errorf("shown")
	if got := console.String(); strings.Contains(got, "hidden") || !strings.Contains(got, "shown") {
		t.Fatalf("console output = %q", got)
	}

	var nl *Logger
	nl.Infof("no panic")
	if err := nl.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
