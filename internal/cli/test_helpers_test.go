package cli

import (
	"bytes"
	"os"
	"testing"
)

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns the captured output.
// Uses a goroutine to read concurrently, avoiding pipe buffer deadlocks.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

// clearPipelineEnv blanks every variable the run command reads so
// ambient shell configuration cannot leak into tests.
func clearPipelineEnv(t *testing.T) {
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
		"GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(key, "")
	}
}
