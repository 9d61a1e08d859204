package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]+`)

// SanitizeTarget replaces characters unsafe for filesystem paths.
// IPv6 colons and anything else outside [a-zA-Z0-9.-] become underscores.
func SanitizeTarget(target string) string {
	return unsafeChars.ReplaceAllString(target, "_")
}

// ScanDirPath generates a consistent directory path for a scan
// Format: {baseDir}/{host}_{YYYYMMDD}_{HHMMSS}
func ScanDirPath(baseDir string, host string, startedAt time.Time) string {
	dirName := fmt.Sprintf("%s_%s", SanitizeTarget(host), startedAt.Format("20060102_150405"))
	return filepath.Join(baseDir, dirName)
}

// ReportsDir is where human-readable reports for a scan are written
func ReportsDir(scanDir string) string { return filepath.Join(scanDir, "reports") }

// RawDir is where structured JSON output for a scan is written
func RawDir(scanDir string) string { return filepath.Join(scanDir, "raw") }

// CreateScanDir creates a scan directory with reports/ and raw/ subdirectories
func CreateScanDir(baseDir string, host string, startedAt time.Time) (string, error) {
	scanPath := ScanDirPath(baseDir, host, startedAt)

	for _, dir := range []string{scanPath, ReportsDir(scanPath), RawDir(scanPath)} {
		if err := EnsureDir(dir); err != nil {
			return "", err
		}
	}

	return scanPath, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
