package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the agent configuration, loaded from YAML with environment
// variable overrides.
type Config struct {
	Env         string `yaml:"env" env:"BACKUPCONTROL_ENV" env-default:"production"`
	StoragePath string `yaml:"storage_path" env:"BACKUPCONTROL_STORAGE_PATH" env-default:"backupcontrol.db"`

	Log struct {
		Level  string `yaml:"level" env:"BACKUPCONTROL_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"BACKUPCONTROL_LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	Backend struct {
		BaseURL string `yaml:"base_url" env:"BACKUPCONTROL_BACKEND_URL"`
		// Timeout for regular API calls, in seconds.
		Timeout int `yaml:"timeout" env:"BACKUPCONTROL_BACKEND_TIMEOUT" env-default:"30"`
		// AnalysisTimeout covers the fetch-and-analyze trigger, which runs
		// a long batch job server-side, in seconds.
		AnalysisTimeout int `yaml:"analysis_timeout" env:"BACKUPCONTROL_ANALYSIS_TIMEOUT" env-default:"600"`
	} `yaml:"backend"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"BACKUPCONTROL_SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"BACKUPCONTROL_SERVER_PORT" env-default:"8432"`
	} `yaml:"server"`

	Dashboard struct {
		// RefreshInterval between automatic snapshot refreshes, in seconds.
		RefreshInterval int `yaml:"refresh_interval" env:"BACKUPCONTROL_REFRESH_INTERVAL" env-default:"60"`
		RecentEvents    int `yaml:"recent_events" env:"BACKUPCONTROL_RECENT_EVENTS" env-default:"20"`
		TrendDays       int `yaml:"trend_days" env:"BACKUPCONTROL_TREND_DAYS" env-default:"7"`
	} `yaml:"dashboard"`

	Analysis struct {
		// PollInterval between progress polls while a job runs, in milliseconds.
		PollInterval int `yaml:"poll_interval" env:"BACKUPCONTROL_ANALYSIS_POLL_INTERVAL" env-default:"2000"`
	} `yaml:"analysis"`

	Tray struct {
		Enabled bool `yaml:"enabled" env:"BACKUPCONTROL_TRAY_ENABLED" env-default:"false"`
	} `yaml:"tray"`
}

// LoadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error when the backend URL is supplied through
// the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	baseURL := strings.TrimSpace(c.Backend.BaseURL)
	if baseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", baseURL)
	}
	c.Backend.BaseURL = strings.TrimRight(baseURL, "/")

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}
	if c.Dashboard.RefreshInterval <= 0 {
		return fmt.Errorf("dashboard.refresh_interval must be > 0")
	}
	if c.Analysis.PollInterval <= 0 {
		return fmt.Errorf("analysis.poll_interval must be > 0")
	}
	return nil
}
