package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadFromEnv reads so ambient shell
// state cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LAKEHOUSE_URL", "LAKEHOUSE_API_KEY",
		"LAKEGATE_TENANT", "LAKEGATE_NAMESPACE", "LAKEGATE_TARGET_TABLE",
		"SOURCE_URI", "SOURCE_PATTERN",
		"WAP_ON_SUCCESS", "WAP_ON_FAILURE", "WAP_BRANCH_SUFFIX",
		"WAP_BRANCH_NAMING", "WAP_BASE_REF",
		"AUDIT_CONCURRENCY", "CHECKS_FILE", "META_DB_PATH",
		"HTTP_TIMEOUT", "RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY",
		"RETRY_MAX_DELAY", "RATE_LIMIT_RPS", "LOG_LEVEL",
		"KEY_ID", "SECRET", "ENDPOINT", "REGION",
		"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY", "GCS_KEY_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "etl", cfg.Tenant)
	assert.Equal(t, "telemetry", cfg.Namespace)
	assert.Equal(t, "signals", cfg.TargetTable)
	assert.Equal(t, "*.parquet", cfg.SourcePattern)
	assert.Equal(t, "inspect", cfg.OnSuccess)
	assert.Equal(t, "keep", cfg.OnFailure)
	assert.Equal(t, "wap-staging", cfg.BranchSuffix)
	assert.Equal(t, "fixed", cfg.BranchNaming)
	assert.Equal(t, "main", cfg.BaseRef)
	assert.Equal(t, 8, cfg.AuditConcurrency)
	assert.Equal(t, "lakegate_runs.sqlite", cfg.MetaDBPath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, float64(0), cfg.RateLimitRPS)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HasLakehouse())
	assert.False(t, cfg.HasS3Config())

	// Defaulted on_success is worth a heads-up, nothing else is.
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "inspect")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAKEHOUSE_URL", "https://lake.example.com")
	t.Setenv("LAKEHOUSE_API_KEY", "lk_test_1234")
	t.Setenv("LAKEGATE_TENANT", "iot")
	t.Setenv("LAKEGATE_NAMESPACE", "sensors")
	t.Setenv("LAKEGATE_TARGET_TABLE", "readings")
	t.Setenv("SOURCE_URI", "s3://drops/sensors/raw/")
	t.Setenv("SOURCE_PATTERN", "*.snappy.parquet")
	t.Setenv("WAP_ON_SUCCESS", "merge")
	t.Setenv("WAP_ON_FAILURE", "delete")
	t.Setenv("WAP_BRANCH_SUFFIX", "staging")
	t.Setenv("WAP_BRANCH_NAMING", "unique")
	t.Setenv("WAP_BASE_REF", "prod")
	t.Setenv("AUDIT_CONCURRENCY", "4")
	t.Setenv("CHECKS_FILE", "/etc/lakegate/checks.yaml")
	t.Setenv("META_DB_PATH", "/var/lib/lakegate/runs.sqlite")
	t.Setenv("HTTP_TIMEOUT", "90s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("RETRY_MAX_DELAY", "15s")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://lake.example.com", cfg.LakehouseURL)
	assert.Equal(t, "lk_test_1234", cfg.LakehouseAPIKey)
	assert.Equal(t, "iot", cfg.Tenant)
	assert.Equal(t, "sensors", cfg.Namespace)
	assert.Equal(t, "readings", cfg.TargetTable)
	assert.Equal(t, "s3://drops/sensors/raw/", cfg.SourceURI)
	assert.Equal(t, "*.snappy.parquet", cfg.SourcePattern)
	assert.Equal(t, "merge", cfg.OnSuccess)
	assert.Equal(t, "delete", cfg.OnFailure)
	assert.Equal(t, "staging", cfg.BranchSuffix)
	assert.Equal(t, "unique", cfg.BranchNaming)
	assert.Equal(t, "prod", cfg.BaseRef)
	assert.Equal(t, 4, cfg.AuditConcurrency)
	assert.Equal(t, "/etc/lakegate/checks.yaml", cfg.ChecksFile)
	assert.Equal(t, "/var/lib/lakegate/runs.sqlite", cfg.MetaDBPath)
	assert.Equal(t, 90*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 15*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 12.5, cfg.RateLimitRPS)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.HasLakehouse())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_UnparsableNumbersKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_CONCURRENCY", "many")
	t.Setenv("HTTP_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "fast")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.AuditConcurrency)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, float64(0), cfg.RateLimitRPS)
}

func TestLoadFromEnv_RetryDelayOrdering(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_BASE_DELAY", "10s")
	t.Setenv("RETRY_MAX_DELAY", "1s")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_DELAY")
}

func TestLoadFromEnv_MissingAPIKeyWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAKEHOUSE_URL", "https://lake.example.com")
	t.Setenv("WAP_ON_SUCCESS", "merge")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "LAKEHOUSE_API_KEY")
}

func TestHasS3Config_PartialConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("KEY_ID", "testkey")
	t.Setenv("ENDPOINT", "s3.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.HasS3Config(), "partial S3 config should return false")
}

func TestHasS3Config_Complete(t *testing.T) {
	clearEnv(t)
	t.Setenv("KEY_ID", "testkey")
	t.Setenv("SECRET", "testsecret")
	t.Setenv("ENDPOINT", "s3.example.com")
	t.Setenv("REGION", "eu-central-1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.True(t, cfg.HasS3Config())
	assert.Equal(t, "testkey", *cfg.S3KeyID)
	assert.Equal(t, "eu-central-1", *cfg.S3Region)
}

func TestLoadFromEnv_CloudListerCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_STORAGE_ACCOUNT", "lakestore")
	t.Setenv("AZURE_STORAGE_KEY", "c2VjcmV0")
	t.Setenv("GCS_KEY_FILE", "/etc/lakegate/gcs.json")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.AzureAccount)
	assert.Equal(t, "lakestore", *cfg.AzureAccount)
	require.NotNil(t, cfg.AzureKey)
	assert.Equal(t, "c2VjcmV0", *cfg.AzureKey)
	require.NotNil(t, cfg.GCSKeyFile)
	assert.Equal(t, "/etc/lakegate/gcs.json", *cfg.GCSKeyFile)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	assert.NoError(t, err, "missing .env is not an error")
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# lakegate settings\n" +
		"LAKEGATE_TEST_TENANT=acme\n" +
		"LAKEGATE_TEST_QUOTED=\"s3://bucket/raw/\"\n" +
		"\n" +
		"not a key value line\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("LAKEGATE_TEST_TENANT", "")
	t.Setenv("LAKEGATE_TEST_QUOTED", "")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "acme", os.Getenv("LAKEGATE_TEST_TENANT"))
	assert.Equal(t, "s3://bucket/raw/", os.Getenv("LAKEGATE_TEST_QUOTED"))
}

func TestLoadDotEnv_EnvTakesPrecedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LAKEGATE_TEST_TENANT=from_file\n"), 0o600))
	t.Setenv("LAKEGATE_TEST_TENANT", "from_env")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "from_env", os.Getenv("LAKEGATE_TEST_TENANT"))
}
