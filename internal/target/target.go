// Package target describes what a single scan run should probe and validates
// it before any connection is attempted.
package target

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

const (
	MinPort = 1
	MaxPort = 65535

	DefaultConnectTimeout = 2 * time.Second
	DefaultConcurrency    = 50
)

// ValidationError reports bad scan input detected before scanning starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Target is the immutable input of one scan run.
type Target struct {
	Host           string
	Ports          []int
	ConnectTimeout time.Duration
	// BannerTimeout bounds the banner read; zero means ConnectTimeout.
	BannerTimeout time.Duration
	Concurrency   int
}

// New builds a Target with default timeout and concurrency.
func New(host string, ports []int) Target {
	return Target{
		Host:           host,
		Ports:          append([]int(nil), ports...),
		ConnectTimeout: DefaultConnectTimeout,
		Concurrency:    DefaultConcurrency,
	}
}

// ReadTimeout returns the effective banner read timeout.
func (t Target) ReadTimeout() time.Duration {
	if t.BannerTimeout > 0 {
		return t.BannerTimeout
	}
	return t.ConnectTimeout
}

// Validate checks every field and returns all problems joined together.
// Each joined error is a *ValidationError.
func (t Target) Validate() error {
	var errs []error

	if err := ValidateHost(t.Host); err != nil {
		errs = append(errs, err)
	}

	if len(t.Ports) == 0 {
		errs = append(errs, &ValidationError{Field: "ports", Reason: "port set is empty"})
	}
	seen := make(map[int]bool, len(t.Ports))
	for _, p := range t.Ports {
		if p < MinPort || p > MaxPort {
			errs = append(errs, &ValidationError{Field: "ports", Reason: fmt.Sprintf("port %d outside %d-%d", p, MinPort, MaxPort)})
			continue
		}
		if seen[p] {
			errs = append(errs, &ValidationError{Field: "ports", Reason: fmt.Sprintf("port %d listed twice", p)})
		}
		seen[p] = true
	}

	if t.ConnectTimeout <= 0 {
		errs = append(errs, &ValidationError{Field: "timeout", Reason: "must be positive"})
	}
	if t.BannerTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "banner timeout", Reason: "must not be negative"})
	}
	if t.Concurrency < 1 {
		errs = append(errs, &ValidationError{Field: "concurrency", Reason: "must be at least 1"})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var hostnameLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateHost accepts an IPv4/IPv6 literal or a syntactically valid hostname.
// Resolution happens later, at dispatch.
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return &ValidationError{Field: "host", Reason: "host is empty"}
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 {
		return &ValidationError{Field: "host", Reason: "hostname longer than 253 characters"}
	}
	name := strings.TrimSuffix(host, ".")
	for _, label := range strings.Split(name, ".") {
		if !hostnameLabel.MatchString(label) {
			return &ValidationError{Field: "host", Reason: fmt.Sprintf("%q is not an IP address or hostname", host)}
		}
	}
	// All-numeric dotted names that failed ParseIP (e.g. 300.1.1.1) are bad addresses.
	if strings.Trim(name, "0123456789.") == "" {
		return &ValidationError{Field: "host", Reason: fmt.Sprintf("%q is not a valid IP address", host)}
	}
	return nil
}
