package target

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hakim/portprobe/internal/services"
)

// Common returns the well-known service ports in ascending order.
func Common() []int {
	return services.Ports()
}

// Single returns a one-port set.
func Single(port int) ([]int, error) {
	if port < MinPort || port > MaxPort {
		return nil, &ValidationError{Field: "port", Reason: fmt.Sprintf("port %d outside %d-%d", port, MinPort, MaxPort)}
	}
	return []int{port}, nil
}

// Range returns the inclusive range start..end.
func Range(start, end int) ([]int, error) {
	if start < MinPort || end > MaxPort || start > end {
		return nil, &ValidationError{Field: "range", Reason: fmt.Sprintf("%d-%d must satisfy %d <= start <= end <= %d", start, end, MinPort, MaxPort)}
	}
	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out, nil
}

// ParseRange parses "start-end".
func ParseRange(s string) ([]int, error) {
	bounds := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(bounds) != 2 {
		return nil, &ValidationError{Field: "range", Reason: fmt.Sprintf("%q is not of the form start-end", s)}
	}
	start, err := parsePort(bounds[0])
	if err != nil {
		return nil, err
	}
	end, err := parsePort(bounds[1])
	if err != nil {
		return nil, err
	}
	return Range(start, end)
}

// ParseSpec parses a port specification and returns the ports in first-seen
// order with duplicates removed. Supported forms:
//   - single: "22"
//   - list: "22,80,443"
//   - range: "1-1024"
//   - mixed: "22,80,8000-8100"
func ParseSpec(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &ValidationError{Field: "ports", Reason: "empty port spec"}
	}

	seen := make(map[int]bool)
	var out []int
	add := func(ports []int) {
		for _, p := range ports {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}

	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, &ValidationError{Field: "ports", Reason: "empty token in port spec"}
		}
		if strings.Contains(tok, "-") {
			ports, err := ParseRange(tok)
			if err != nil {
				return nil, err
			}
			add(ports)
			continue
		}
		p, err := parsePort(tok)
		if err != nil {
			return nil, err
		}
		single, err := Single(p)
		if err != nil {
			return nil, err
		}
		add(single)
	}
	return out, nil
}

func parsePort(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ValidationError{Field: "port", Reason: fmt.Sprintf("%q is not a number", strings.TrimSpace(s))}
	}
	return v, nil
}
