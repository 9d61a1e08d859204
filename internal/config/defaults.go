package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		ScanDir: "scans",
		DBPath:  "portprobe.db",
		LogDir:  "logs",
		Scan: ScanConfig{
			Timeout:        "2s",
			BannerTimeout:  "",
			GracePeriod:    "2s",
			Concurrency:    50,
			BannerBytes:    1024,
			TimeoutAsError: false,
		},
		Scope: ScopeConfig{
			AllowedDomains: []string{},
			AllowedCIDRs:   []string{},
		},
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
