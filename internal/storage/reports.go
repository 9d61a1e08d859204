package storage

import (
	"errors"

	"github.com/hakim/portprobe/internal/models"
	"go.etcd.io/bbolt"
)

// SaveReport stores a finished report under its ID
func (s *Store) SaveReport(report *models.ScanReport) error {
	if report.ID == "" {
		return errors.New("report has no ID")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(bucketReports)), report.ID, report)
	})
}

// GetReport loads the report saved for scan id. It returns nil, nil when absent.
func (s *Store) GetReport(id string) (*models.ScanReport, error) {
	var report *models.ScanReport

	err := s.db.View(func(tx *bbolt.Tx) error {
		var r models.ScanReport
		found, err := getJSON(tx.Bucket([]byte(bucketReports)), id, &r)
		if found {
			report = &r
		}
		return err
	})

	return report, err
}
