// Package util provides common utilities for pingwatch.
package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultHosts is monitored when no hosts are configured.
var DefaultHosts = []string{
	"8.8.8.8",    // Google DNS
	"1.1.1.1",    // Cloudflare DNS
	"google.com", // name resolution + reachability
}

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	// Monitoring
	Hosts         []string `mapstructure:"hosts" yaml:"hosts" validate:"dive,required,hostname_rfc1123|ip"`
	Interval      int      `mapstructure:"interval" yaml:"interval" validate:"min=10,max=3600"`
	Timeout       int      `mapstructure:"timeout" yaml:"timeout" validate:"min=1000,max=30000"`
	Retries       int      `mapstructure:"retries" yaml:"retries" validate:"min=1,max=10"`
	ResolveWindow int      `mapstructure:"resolve_window" yaml:"resolve_window" validate:"min=1,max=1000"`
	TraceMaxHops  int      `mapstructure:"trace_max_hops" yaml:"trace_max_hops" validate:"min=1,max=64"`

	// Report settings
	ReportOutputDir string `mapstructure:"report_output_dir" yaml:"report_output_dir"`

	// Web server
	WebPort int `mapstructure:"web_port" yaml:"web_port" validate:"min=1,max=65535"`
}

// MonitorConfig is the resolved, already validated input of the monitor.
type MonitorConfig struct {
	Hosts         []string
	Interval      time.Duration
	TimeoutMs     int
	Retries       int
	ResolveWindow int
	DataDir       string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pingwatch")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "pingwatch.log"),

		Hosts:         append([]string(nil), DefaultHosts...),
		Interval:      60,
		Timeout:       5000,
		Retries:       2,
		ResolveWindow: 10,
		TraceMaxHops:  30,

		ReportOutputDir: filepath.Join(dataDir, "reports"),
		WebPort:         8080,
	}
}

// LoadConfig loads configuration from file, environment and bound flags.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("hosts", cfg.Hosts)
	v.SetDefault("interval", cfg.Interval)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("retries", cfg.Retries)
	v.SetDefault("resolve_window", cfg.ResolveWindow)
	v.SetDefault("trace_max_hops", cfg.TraceMaxHops)
	v.SetDefault("web_port", cfg.WebPort)

	v.SetEnvPrefix("pingwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Paths derived from data_dir follow it unless set explicitly.
	if !v.IsSet("log_file") {
		cfg.LogFile = filepath.Join(cfg.DataDir, "pingwatch.log")
	}
	if !v.IsSet("report_output_dir") {
		cfg.ReportOutputDir = filepath.Join(cfg.DataDir, "reports")
	}

	cfg.Hosts = normalizeHosts(cfg.Hosts)
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = append([]string(nil), DefaultHosts...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

// Validate checks every bound of the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return formatValidationErrors(ve)
		}
		return err
	}
	return nil
}

// Monitor returns the monitor's view of the configuration.
func (c *Config) Monitor() MonitorConfig {
	return MonitorConfig{
		Hosts:         append([]string(nil), c.Hosts...),
		Interval:      time.Duration(c.Interval) * time.Second,
		TimeoutMs:     c.Timeout,
		Retries:       c.Retries,
		ResolveWindow: c.ResolveWindow,
		DataDir:       c.DataDir,
	}
}

func formatValidationErrors(ve validator.ValidationErrors) error {
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, fe := range ve {
		fmt.Fprintf(&sb, "- field '%s' failed on '%s' (value: %v)\n", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return errors.New(strings.TrimSuffix(sb.String(), "\n"))
}

// normalizeHosts accepts entries such as "a, b" coming from env or flags.
func normalizeHosts(hosts []string) []string {
	var out []string
	for _, h := range hosts {
		for _, part := range strings.Split(h, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
