package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // the default zone must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Config holds tracker configuration.
type Config struct {
	APIURL          string `yaml:"api_url"`
	CategoryPageURL string `yaml:"category_page_url"`
	CategoryFile    string `yaml:"category_file"`

	Request RequestConfig `yaml:"request"`

	PageSize         int           `yaml:"page_size"`
	MaxPages         int           `yaml:"max_pages"`
	Parallelism      int           `yaml:"parallelism"`
	Delay            time.Duration `yaml:"delay"`
	RandomDelay      time.Duration `yaml:"random_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryMultiplier  float64       `yaml:"retry_multiplier"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`

	Brands   []string `yaml:"brands"`
	Timezone string   `yaml:"timezone"`

	RegistryDir  string `yaml:"registry_dir"`
	OutputDir    string `yaml:"output_dir"`
	StoreBackend string `yaml:"store_backend"` // csv or sqlite
	SQLitePath   string `yaml:"sqlite_path"`
	CacheSize    int    `yaml:"cache_size"`

	Report ReportConfig `yaml:"report"`

	WebhookURL  string `yaml:"webhook_url"`
	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// RequestConfig carries the fixed fields of every ranking request body.
type RequestConfig struct {
	CustomerNo string `yaml:"customer_no"`
	Domain     string `yaml:"domain"`
	GenderType string `yaml:"gender_type"`
	DateType   string `yaml:"date_type"`
	AgeGroup   string `yaml:"age_group"`
	Origin     string `yaml:"origin"`
	Referer    string `yaml:"referer"`
	APIKey     string `yaml:"api_key"`
}

// ReportConfig controls aggregation output.
type ReportConfig struct {
	WeeklyTopN   int   `yaml:"weekly_top_n"`
	MonthlyTopN  int   `yaml:"monthly_top_n"`
	PriceBuckets []int `yaml:"price_buckets"`
	MinDays      int   `yaml:"min_days"`
	XLSX         bool  `yaml:"xlsx"`
}

// DefaultConfig returns conservative defaults for the ranking source.
func DefaultConfig() *Config {
	return &Config{
		APIURL:          "https://gw-front.wconcept.co.kr/display/api/best/v1/product",
		CategoryPageURL: "https://display.wconcept.co.kr/rn/best",
		Request: RequestConfig{
			CustomerNo: "0",
			Domain:     "WOMEN",
			GenderType: "all",
			DateType:   "daily",
			AgeGroup:   "all",
			Origin:     "https://display.wconcept.co.kr",
			Referer:    "https://display.wconcept.co.kr/rn/best",
		},
		PageSize:         200,
		MaxPages:         10,
		Parallelism:      4,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          30 * time.Second,
		MaxAttempts:      5,
		RetryBackoff:     time.Second,
		RetryMultiplier:  2,
		RetryBackoffMax:  30 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		Brands:           []string{"HACIE", "하시에"},
		Timezone:         "Asia/Seoul",
		RegistryDir:      "data",
		OutputDir:        "output",
		StoreBackend:     "csv",
		SQLitePath:       "data/rankings.db",
		CacheSize:        64,
		Report: ReportConfig{
			WeeklyTopN:   10,
			MonthlyTopN:  20,
			PriceBuckets: []int{50000, 100000, 200000, 300000},
			MinDays:      3,
			XLSX:         false,
		},
	}
}

// LoadFile overlays the YAML file at path onto the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("API URL", c.APIURL); err != nil {
		return err
	}
	if c.CategoryPageURL != "" {
		if err := validateURL("category page URL", c.CategoryPageURL); err != nil {
			return err
		}
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if len(c.Brands) == 0 {
		return fmt.Errorf("brands cannot be empty")
	}
	for _, b := range c.Brands {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("brands cannot contain blank entries")
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.RegistryDir == "" {
		return fmt.Errorf("registry dir cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	switch c.StoreBackend {
	case "csv":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path cannot be empty for the sqlite store backend")
		}
	default:
		return fmt.Errorf("store backend must be csv or sqlite")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}

	if c.Report.WeeklyTopN <= 0 || c.Report.MonthlyTopN <= 0 {
		return fmt.Errorf("report top N must be positive")
	}
	for i := 1; i < len(c.Report.PriceBuckets); i++ {
		if c.Report.PriceBuckets[i] <= c.Report.PriceBuckets[i-1] {
			return fmt.Errorf("report price buckets must be strictly increasing")
		}
	}
	if c.Report.MinDays < 0 {
		return fmt.Errorf("report min days cannot be negative")
	}

	if c.WebhookURL != "" {
		if err := validateURL("webhook URL", c.WebhookURL); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
