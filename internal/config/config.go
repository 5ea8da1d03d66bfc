// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the lakegate binary reads from the environment.
// It is consumed only at the binary edge: the coordinator and its
// collaborators receive explicit structs built from it.
type Config struct {
	// Lakehouse service connection (remote mode).
	LakehouseURL    string
	LakehouseAPIKey string

	// Pipeline defaults, overridable per invocation via flags.
	Tenant        string
	Namespace     string
	TargetTable   string
	SourceURI     string
	SourcePattern string
	OnSuccess     string // "merge" or "inspect"
	OnFailure     string // "keep" or "delete"
	BranchSuffix  string
	BranchNaming  string // "fixed" or "unique"
	BaseRef       string

	// Audit settings.
	AuditConcurrency int
	ChecksFile       string // optional YAML check suite; empty selects the built-in checks

	// Run-history store (control plane).
	MetaDBPath string

	// HTTP client tuning for the lakehouse service.
	HTTPTimeout      time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RateLimitRPS     float64 // 0 disables client-side throttling

	LogLevel string // debug, info, warn, error (default "info")

	// S3-compatible credentials for the source inventory lister.
	// Optional — nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	// Azure Blob Storage shared-key credentials for the source lister.
	AzureAccount *string
	AzureKey     *string

	// GCS service-account key file for the source lister. Nil falls back
	// to Application Default Credentials.
	GCSKeyFile *string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if all required S3 fields are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil &&
		c.S3Endpoint != nil && c.S3Region != nil
}

// HasLakehouse returns true when a remote lakehouse service is configured.
func (c *Config) HasLakehouse() bool {
	return c.LakehouseURL != ""
}

// LoadFromEnv loads configuration from environment variables.
// S3 variables are optional — the pipeline can run without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LakehouseURL:    os.Getenv("LAKEHOUSE_URL"),
		LakehouseAPIKey: os.Getenv("LAKEHOUSE_API_KEY"),
		Tenant:          os.Getenv("LAKEGATE_TENANT"),
		Namespace:       os.Getenv("LAKEGATE_NAMESPACE"),
		TargetTable:     os.Getenv("LAKEGATE_TARGET_TABLE"),
		SourceURI:       os.Getenv("SOURCE_URI"),
		SourcePattern:   os.Getenv("SOURCE_PATTERN"),
		OnSuccess:       os.Getenv("WAP_ON_SUCCESS"),
		OnFailure:       os.Getenv("WAP_ON_FAILURE"),
		BranchSuffix:    os.Getenv("WAP_BRANCH_SUFFIX"),
		BranchNaming:    os.Getenv("WAP_BRANCH_NAMING"),
		BaseRef:         os.Getenv("WAP_BASE_REF"),
		ChecksFile:      os.Getenv("CHECKS_FILE"),
		MetaDBPath:      os.Getenv("META_DB_PATH"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}

	// Numeric and duration knobs; unparsable values keep the default.
	if v := os.Getenv("AUDIT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuditConcurrency = n
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryBaseDelay = d
		}
	}
	if v := os.Getenv("RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryMaxDelay = d
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}

	// S3 fields are optional — only set if present
	if v := os.Getenv("KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.S3Region = &v
	}
	if v := os.Getenv("AZURE_STORAGE_ACCOUNT"); v != "" {
		cfg.AzureAccount = &v
	}
	if v := os.Getenv("AZURE_STORAGE_KEY"); v != "" {
		cfg.AzureKey = &v
	}
	if v := os.Getenv("GCS_KEY_FILE"); v != "" {
		cfg.GCSKeyFile = &v
	}

	// Defaults
	if cfg.Tenant == "" {
		cfg.Tenant = "etl"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "telemetry"
	}
	if cfg.TargetTable == "" {
		cfg.TargetTable = "signals"
	}
	if cfg.SourcePattern == "" {
		cfg.SourcePattern = "*.parquet"
	}
	if cfg.OnSuccess == "" {
		cfg.OnSuccess = "inspect"
		cfg.Warnings = append(cfg.Warnings,
			"WAP_ON_SUCCESS not set — defaulting to \"inspect\": passing runs leave the branch unmerged")
	}
	if cfg.OnFailure == "" {
		cfg.OnFailure = "keep"
	}
	if cfg.BranchSuffix == "" {
		cfg.BranchSuffix = "wap-staging"
	}
	if cfg.BranchNaming == "" {
		cfg.BranchNaming = "fixed"
	}
	if cfg.BaseRef == "" {
		cfg.BaseRef = "main"
	}
	if cfg.AuditConcurrency == 0 {
		cfg.AuditConcurrency = 8
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "lakegate_runs.sqlite"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 8 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("RETRY_MAX_DELAY (%s) must not be below RETRY_BASE_DELAY (%s)",
			cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	if cfg.HasLakehouse() && cfg.LakehouseAPIKey == "" {
		cfg.Warnings = append(cfg.Warnings,
			"LAKEHOUSE_URL is set but LAKEHOUSE_API_KEY is empty — remote runs will be rejected")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
