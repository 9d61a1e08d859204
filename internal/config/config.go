package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	ScanDir string       `mapstructure:"scan_dir" yaml:"scan_dir"`
	DBPath  string       `mapstructure:"db_path" yaml:"db_path"`
	LogDir  string       `mapstructure:"log_dir" yaml:"log_dir"`
	Scan    ScanConfig   `mapstructure:"scan" yaml:"scan"`
	Notify  NotifyConfig `mapstructure:"notify" yaml:"notify"`
	Scope   ScopeConfig  `mapstructure:"scope" yaml:"scope"`
}

// ScanConfig holds engine and probe tuning. Durations are Go duration strings.
type ScanConfig struct {
	Timeout        string `mapstructure:"timeout" yaml:"timeout"`
	BannerTimeout  string `mapstructure:"banner_timeout" yaml:"banner_timeout"`
	GracePeriod    string `mapstructure:"grace_period" yaml:"grace_period"`
	Concurrency    int    `mapstructure:"concurrency" yaml:"concurrency"`
	BannerBytes    int    `mapstructure:"banner_bytes" yaml:"banner_bytes"`
	TimeoutAsError bool   `mapstructure:"timeout_as_error" yaml:"timeout_as_error"`
}

// NotifyConfig configures the completion webhook
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// ScopeConfig restricts which hosts may be scanned
type ScopeConfig struct {
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	AllowedCIDRs   []string `mapstructure:"allowed_cidrs" yaml:"allowed_cidrs"`
}

// Load reads and parses configuration from a YAML file
// If path is empty, searches for portprobe.yaml in current directory and ~/.config/portprobe/
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		// Use explicit path
		v.SetConfigFile(path)
	} else {
		// Search for config in default locations
		v.SetConfigName("portprobe")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "portprobe"))
		}
	}

	v.SetEnvPrefix("PORTPROBE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults seeds viper so a partial config file still yields a usable Config
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("scan_dir", d.ScanDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("scan.timeout", d.Scan.Timeout)
	v.SetDefault("scan.banner_timeout", d.Scan.BannerTimeout)
	v.SetDefault("scan.grace_period", d.Scan.GracePeriod)
	v.SetDefault("scan.concurrency", d.Scan.Concurrency)
	v.SetDefault("scan.banner_bytes", d.Scan.BannerBytes)
	v.SetDefault("scan.timeout_as_error", d.Scan.TimeoutAsError)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.ScanDir == "" {
		errs = append(errs, errors.New("scan_dir cannot be empty"))
	}

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path cannot be empty"))
	}

	if _, err := c.Scan.ConnectTimeout(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Scan.ReadTimeout(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Scan.Grace(); err != nil {
		errs = append(errs, err)
	}

	if c.Scan.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}

	if c.Scan.BannerBytes < 1024 {
		errs = append(errs, errors.New("banner_bytes must be at least 1024"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ConnectTimeout parses scan.timeout
func (s ScanConfig) ConnectTimeout() (time.Duration, error) {
	return parsePositive("timeout", s.Timeout)
}

// ReadTimeout parses scan.banner_timeout, falling back to the connect timeout when empty
func (s ScanConfig) ReadTimeout() (time.Duration, error) {
	if s.BannerTimeout == "" {
		return s.ConnectTimeout()
	}
	return parsePositive("banner_timeout", s.BannerTimeout)
}

// Grace parses scan.grace_period
func (s ScanConfig) Grace() (time.Duration, error) {
	return parsePositive("grace_period", s.GracePeriod)
}

func parsePositive(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}
