package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanMeta contains metadata about a scan
type ScanMeta struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	PortSpec    string     `json:"port_spec"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      ScanStatus `json:"status"`
	ScanDir     string     `json:"scan_dir"`
	Requested   int        `json:"requested"`
	OpenCount   int        `json:"open_count"`
}

// NewScan creates scan metadata with a fresh ID in the pending state
func NewScan(target, portSpec string) *ScanMeta {
	return &ScanMeta{
		ID:        uuid.New().String(),
		Target:    target,
		PortSpec:  portSpec,
		StartedAt: time.Now(),
		Status:    StatusPending,
	}
}
