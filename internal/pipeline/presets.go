package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hakim/portprobe/internal/target"
)

// Preset is a named port set.
type Preset struct {
	Name        string
	Description string
	Spec        string // port spec understood by target.ParseSpec; empty for the service table
}

// Ports expands the preset into a port list.
func (p Preset) Ports() ([]int, error) {
	if p.Spec == "" {
		return target.Common(), nil
	}
	return target.ParseSpec(p.Spec)
}

// builtinPresets is the registry of all known presets.
var builtinPresets = map[string]Preset{
	"common": {
		Name:        "common",
		Description: "Well-known service ports (FTP, SSH, Telnet, SMTP, HTTP, POP3, IMAP, HTTPS, MySQL, HTTP-Alt)",
	},
	"quick": {
		Name:        "quick",
		Description: "System ports 1-1024",
		Spec:        "1-1024",
	},
	"web": {
		Name:        "web",
		Description: "Common HTTP and HTTPS listeners",
		Spec:        "80,443,8000,8080,8443",
	},
	"full": {
		Name:        "full",
		Description: "Every TCP port 1-65535",
		Spec:        "1-65535",
	},
}

// BuiltinPresets returns the available presets.
func BuiltinPresets() map[string]Preset {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Preset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// PresetNames lists preset names alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or an error if not found.
func GetPreset(name string) (*Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	cp := p
	return &cp, nil
}
