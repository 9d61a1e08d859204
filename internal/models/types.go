package models

// ScanStatus represents the current state of a scan
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusComplete  ScanStatus = "complete"
	StatusCancelled ScanStatus = "cancelled"
	StatusFailed    ScanStatus = "failed"
)

// ProbeStatus is the classification of a single port probe
type ProbeStatus string

const (
	ProbeOpen   ProbeStatus = "OPEN"
	ProbeClosed ProbeStatus = "CLOSED"
	ProbeError  ProbeStatus = "ERROR"
)

// Banner placeholders used when an open port yields no usable text.
const (
	BannerNone   = "No banner received"
	BannerFailed = "Banner grab failed"
)
