package pipeline

import (
	"fmt"
	"net"
	"strings"
)

// ScopeConfig defines allowed scanning boundaries.
// An empty ScopeConfig (no rules) allows any target.
type ScopeConfig struct {
	// AllowedDomains is a list of hostname patterns a named target must match.
	// Wildcard prefix ("*.example.com") matches any single-label subdomain.
	// Exact entry ("example.com") matches only that literal value.
	AllowedDomains []string

	// AllowedCIDRs is a list of CIDR ranges an IP target must fall within.
	AllowedCIDRs []string
}

// Empty reports whether no rules are configured.
func (s *ScopeConfig) Empty() bool {
	return s == nil || (len(s.AllowedDomains) == 0 && len(s.AllowedCIDRs) == 0)
}

// ValidateHost checks an IP literal against AllowedCIDRs and a hostname
// against AllowedDomains. Hostnames are not resolved here; see
// ValidateAddress.
func (s *ScopeConfig) ValidateHost(host string) error {
	if s.Empty() {
		return nil
	}
	if net.ParseIP(host) != nil {
		return s.ValidateIP(host)
	}
	return s.ValidateTarget(host)
}

// ValidateAddress checks the address a host resolved to against
// AllowedCIDRs. A hostname that passes ValidateHost must still land inside
// the allowed ranges when any are configured.
func (s *ScopeConfig) ValidateAddress(addr string) error {
	if s == nil || len(s.AllowedCIDRs) == 0 {
		return nil
	}
	return s.ValidateIP(addr)
}

// ValidateTarget checks if a hostname is within scope.
// If AllowedDomains is empty, every name is allowed.
func (s *ScopeConfig) ValidateTarget(target string) error {
	if len(s.AllowedDomains) == 0 {
		return nil
	}
	for _, pattern := range s.AllowedDomains {
		if domainMatches(target, pattern) {
			return nil
		}
	}
	return fmt.Errorf("target %q is outside allowed scope (domains: %s)",
		target, strings.Join(s.AllowedDomains, ", "))
}

// ValidateIP checks if an IP is within any allowed CIDR range.
// Returns nil if allowed or no CIDRs configured, error if out of scope.
func (s *ScopeConfig) ValidateIP(ip string) error {
	if len(s.AllowedCIDRs) == 0 {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return fmt.Errorf("scope: %q is not a valid IP address", ip)
	}
	for _, cidr := range s.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return nil
		}
	}
	return fmt.Errorf("IP %q is outside allowed CIDR scope (%s)",
		ip, strings.Join(s.AllowedCIDRs, ", "))
}

// domainMatches returns true when target satisfies the scope pattern.
//
//   - "*.example.com" matches "foo.example.com" but not "example.com" or
//     "foo.bar.example.com" (single wildcard label only).
//   - "example.com" matches only the exact string "example.com".
//   - Comparison is case-insensitive and ignores a trailing dot.
func domainMatches(target, pattern string) bool {
	target = strings.TrimSuffix(strings.ToLower(target), ".")
	pattern = strings.ToLower(pattern)

	suffix, wildcard := strings.CutPrefix(pattern, "*.")
	if !wildcard {
		return target == pattern
	}
	if !strings.HasSuffix(target, "."+suffix) {
		return false
	}
	label := target[:len(target)-len(suffix)-1]
	return len(label) > 0 && !strings.Contains(label, ".")
}

func (s *ScopeConfig) cidrs() []string {
	if s == nil {
		return nil
	}
	return s.AllowedCIDRs
}
