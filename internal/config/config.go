package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	GitLab      GitLab   `yaml:"gitlab"`
	Analysis    Analysis `yaml:"analysis"`
	Client      Client   `yaml:"client"`
	Publish     Publish  `yaml:"publish"`
	MetricsAddr string   `yaml:"metrics_addr"`
	LogLevel    string   `yaml:"log_level"`
}

// GitLab represents the target instance connection settings
type GitLab struct {
	URL                string `yaml:"url"`
	Token              string `yaml:"token"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Analysis represents analysis-run settings
type Analysis struct {
	LookbackDays int    `yaml:"lookback_days"`
	SecurityData bool   `yaml:"security_data"`
	AllReports   bool   `yaml:"all_reports"`
	MaxProjects  int    `yaml:"max_projects"`
	OutputDir    string `yaml:"output_dir"`
	ForceRestart bool   `yaml:"force_restart"`
	PerPage      int    `yaml:"per_page"`
	MaxPages     int    `yaml:"max_pages"`
	ShowProgress bool   `yaml:"show_progress"`
}

// Client represents API client tuning
type Client struct {
	MinIntervalMs   int `yaml:"min_interval_ms"`
	PerMinuteBudget int `yaml:"per_minute_budget"`
	MaxRetries      int `yaml:"max_retries"`
	BaseDelayMs     int `yaml:"base_delay_ms"`
	MaxDelayMs      int `yaml:"max_delay_ms"`
	TimeoutSeconds  int `yaml:"timeout_s"`
}

// Publish represents optional S3-compatible artifact upload
type Publish struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Analysis: Analysis{
			LookbackDays: 90,
			OutputDir:    "./reports",
			PerPage:      100,
			MaxPages:     100,
			ShowProgress: true,
		},
		Client: Client{
			MinIntervalMs:   200,
			PerMinuteBudget: 600,
			MaxRetries:      3,
			BaseDelayMs:     1000,
			MaxDelayMs:      30000,
			TimeoutSeconds:  120,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Token from environment unless set explicitly
	if cfg.GitLab.Token == "" {
		cfg.GitLab.Token = os.Getenv("GITLAB_TOKEN")
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("gitlab-url") {
		cfg.GitLab.URL, _ = flags.GetString("gitlab-url")
	}
	if flags.Changed("token") {
		cfg.GitLab.Token, _ = flags.GetString("token")
	}
	if flags.Changed("insecure") {
		cfg.GitLab.InsecureSkipVerify, _ = flags.GetBool("insecure")
	}

	if flags.Changed("lookback-days") {
		cfg.Analysis.LookbackDays, _ = flags.GetInt("lookback-days")
	}
	if flags.Changed("security-data") {
		cfg.Analysis.SecurityData, _ = flags.GetBool("security-data")
	}
	if flags.Changed("all-reports") {
		cfg.Analysis.AllReports, _ = flags.GetBool("all-reports")
	}
	if flags.Changed("max-projects") {
		cfg.Analysis.MaxProjects, _ = flags.GetInt("max-projects")
	}
	if flags.Changed("output") {
		cfg.Analysis.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("force-restart") {
		cfg.Analysis.ForceRestart, _ = flags.GetBool("force-restart")
	}
	if flags.Changed("per-page") {
		cfg.Analysis.PerPage, _ = flags.GetInt("per-page")
	}
	if flags.Changed("max-pages") {
		cfg.Analysis.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("show-progress") {
		cfg.Analysis.ShowProgress, _ = flags.GetBool("show-progress")
	}

	if flags.Changed("min-interval-ms") {
		cfg.Client.MinIntervalMs, _ = flags.GetInt("min-interval-ms")
	}
	if flags.Changed("per-minute-budget") {
		cfg.Client.PerMinuteBudget, _ = flags.GetInt("per-minute-budget")
	}
	if flags.Changed("retries") {
		cfg.Client.MaxRetries, _ = flags.GetInt("retries")
	}
	if flags.Changed("base-delay-ms") {
		cfg.Client.BaseDelayMs, _ = flags.GetInt("base-delay-ms")
	}
	if flags.Changed("max-delay-ms") {
		cfg.Client.MaxDelayMs, _ = flags.GetInt("max-delay-ms")
	}
	if flags.Changed("timeout") {
		cfg.Client.TimeoutSeconds, _ = flags.GetInt("timeout")
	}

	if flags.Changed("publish-endpoint") {
		cfg.Publish.Endpoint, _ = flags.GetString("publish-endpoint")
		cfg.Publish.Enabled = cfg.Publish.Endpoint != ""
	}
	if flags.Changed("publish-access-key") {
		cfg.Publish.AccessKey, _ = flags.GetString("publish-access-key")
	}
	if flags.Changed("publish-secret-key") {
		cfg.Publish.SecretKey, _ = flags.GetString("publish-secret-key")
	}
	if flags.Changed("publish-bucket") {
		cfg.Publish.Bucket, _ = flags.GetString("publish-bucket")
	}
	if flags.Changed("publish-secure") {
		cfg.Publish.Secure, _ = flags.GetBool("publish-secure")
	}

	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func (c *Config) validate() error {
	if c.GitLab.URL == "" {
		return fmt.Errorf("gitlab url is required")
	}
	if _, err := url.Parse(c.GitLab.URL); err != nil {
		return fmt.Errorf("gitlab url is invalid: %w", err)
	}
	if c.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required (flag, config file, or GITLAB_TOKEN)")
	}

	if c.Analysis.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive")
	}
	if c.Analysis.PerPage <= 0 || c.Analysis.PerPage > 100 {
		return fmt.Errorf("per page must be between 1 and 100")
	}
	if c.Analysis.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}

	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.Client.PerMinuteBudget <= 0 {
		return fmt.Errorf("per minute budget must be positive")
	}

	if c.Publish.Enabled {
		if c.Publish.Endpoint == "" {
			return fmt.Errorf("publish endpoint is required when publish is enabled")
		}
		if c.Publish.Bucket == "" {
			return fmt.Errorf("publish bucket is required when publish is enabled")
		}
	}

	return nil
}
