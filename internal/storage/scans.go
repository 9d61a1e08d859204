package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hakim/portprobe/internal/models"
	"go.etcd.io/bbolt"
)

// SaveScan persists a scan metadata record and indexes it under its target
func (s *Store) SaveScan(meta *models.ScanMeta) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(bucketScans)), meta.ID, meta); err != nil {
			return err
		}

		// target -> []scan_id
		index := tx.Bucket([]byte(bucketScanIndex))
		var scanIDs []string
		if _, err := getJSON(index, meta.Target, &scanIDs); err != nil {
			return err
		}
		for _, id := range scanIDs {
			if id == meta.ID {
				return nil
			}
		}
		return putJSON(index, meta.Target, append(scanIDs, meta.ID))
	})
}

// GetScan retrieves a scan metadata record by ID. It returns nil, nil when absent.
func (s *Store) GetScan(id string) (*models.ScanMeta, error) {
	var meta *models.ScanMeta

	err := s.db.View(func(tx *bbolt.Tx) error {
		var m models.ScanMeta
		found, err := getJSON(tx.Bucket([]byte(bucketScans)), id, &m)
		if found {
			meta = &m
		}
		return err
	})

	return meta, err
}

// ListScans retrieves all scan metadata records for a target, sorted by StartedAt descending
func (s *Store) ListScans(target string) ([]*models.ScanMeta, error) {
	var scans []*models.ScanMeta

	err := s.db.View(func(tx *bbolt.Tx) error {
		var scanIDs []string
		if _, err := getJSON(tx.Bucket([]byte(bucketScanIndex)), target, &scanIDs); err != nil {
			return err
		}

		scansBucket := tx.Bucket([]byte(bucketScans))
		for _, id := range scanIDs {
			var meta models.ScanMeta
			found, err := getJSON(scansBucket, id, &meta)
			if err != nil {
				return err
			}
			if found {
				scans = append(scans, &meta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(scans, func(i, j int) bool {
		return scans[i].StartedAt.After(scans[j].StartedAt)
	})

	return scans, nil
}

// GetLatestScan retrieves the most recent scan for a target
func (s *Store) GetLatestScan(target string) (*models.ScanMeta, error) {
	scans, err := s.ListScans(target)
	if err != nil || len(scans) == 0 {
		return nil, err
	}
	return scans[0], nil
}

// UpdateScanStatus updates the status of a scan and sets CompletedAt on terminal states
func (s *Store) UpdateScanStatus(id string, status models.ScanStatus) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket([]byte(bucketScans))

		var meta models.ScanMeta
		found, err := getJSON(scans, id, &meta)
		if err != nil || !found {
			return err
		}

		meta.Status = status
		if isTerminal(status) && meta.CompletedAt == nil {
			now := time.Now()
			meta.CompletedAt = &now
		}

		return putJSON(scans, id, &meta)
	})
}

func isTerminal(status models.ScanStatus) bool {
	switch status {
	case models.StatusComplete, models.StatusCancelled, models.StatusFailed:
		return true
	}
	return false
}

// getJSON decodes key from bucket into v. found is false when the key is absent.
func getJSON(b *bbolt.Bucket, key string, v any) (found bool, err error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decoding %s/%s: %w", b.Tx().DB().Path(), key, err)
	}
	return true, nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
