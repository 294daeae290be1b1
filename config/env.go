package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvList splits key on commas, dropping blank items.
func EnvList(key string) ([]string, bool) {
	value, ok := EnvString(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, len(out) > 0
}

// ApplyEnv overrides cfg with RANK_* environment variables.
func ApplyEnv(cfg *Config) error {
	stringVars := map[string]*string{
		"RANK_API_URL":           &cfg.APIURL,
		"RANK_CATEGORY_PAGE_URL": &cfg.CategoryPageURL,
		"RANK_CATEGORY_FILE":     &cfg.CategoryFile,
		"RANK_API_KEY":           &cfg.Request.APIKey,
		"RANK_TIMEZONE":          &cfg.Timezone,
		"RANK_REGISTRY_DIR":      &cfg.RegistryDir,
		"RANK_OUTPUT_DIR":        &cfg.OutputDir,
		"RANK_STORE_BACKEND":     &cfg.StoreBackend,
		"RANK_SQLITE_PATH":       &cfg.SQLitePath,
		"RANK_WEBHOOK_URL":       &cfg.WebhookURL,
		"RANK_METRICS_ADDR":      &cfg.MetricsAddr,
	}
	for key, dst := range stringVars {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"RANK_PAGE_SIZE":    &cfg.PageSize,
		"RANK_MAX_PAGES":    &cfg.MaxPages,
		"RANK_PARALLEL":     &cfg.Parallelism,
		"RANK_MAX_ATTEMPTS": &cfg.MaxAttempts,
		"RANK_MIN_DAYS":     &cfg.Report.MinDays,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"RANK_TIMEOUT":           &cfg.Timeout,
		"RANK_RETRY_BACKOFF":     &cfg.RetryBackoff,
		"RANK_RETRY_BACKOFF_MAX": &cfg.RetryBackoffMax,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if brands, ok := EnvList("RANK_BRANDS"); ok {
		cfg.Brands = brands
	}
	return nil
}
