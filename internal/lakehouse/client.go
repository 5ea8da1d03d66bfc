// Package lakehouse provides the HTTP client for a branch-capable
// lakehouse catalog service. The client covers branch lifecycle, SQL
// queries against a ref, parquet imports, and asynchronous transform
// jobs, and implements both domain.TableClient and domain.WriteDelegate.
package lakehouse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"lakegate/internal/domain"
)

var (
	_ domain.TableClient   = (*Client)(nil)
	_ domain.WriteDelegate = (*Client)(nil)
)

// Transform job states reported by the service.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobSucceeded = "SUCCEEDED"
	JobFailed    = "FAILED"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 8 * time.Second
	defaultPollInterval = 2 * time.Second
)

// ClientConfig holds the connection settings for the lakehouse service.
type ClientConfig struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single HTTP exchange, not a whole retried call.
	Timeout time.Duration

	// MaxAttempts is the total number of tries per request, including
	// the first. Transport errors, 429, and 5xx responses are retried
	// with fibonacci backoff starting at BaseDelay and capped at MaxDelay.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// RateLimitRPS throttles outbound requests. Zero disables the limiter.
	RateLimitRPS float64

	// PollInterval is the delay between transform job status checks.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Client is a lakehouse service API client. It is safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a Client from cfg. The base URL and API key are
// required; everything else has working defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, domain.ErrConfiguration("lakehouse base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ErrConfiguration("lakehouse api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter:      limiter,
		maxAttempts:  maxAttempts,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// HasBranch implements domain.TableClient.
func (c *Client) HasBranch(ctx context.Context, name string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/v1/branches/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, c.apiError(status, body)
	}
}

// CreateBranch implements domain.TableClient.
func (c *Client) CreateBranch(ctx context.Context, name, fromRef string) error {
	payload := struct {
		Name    string `json:"name"`
		FromRef string `json:"from_ref"`
	}{Name: name, FromRef: fromRef}

	status, body, err := c.do(ctx, http.MethodPost, "/v1/branches", payload, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return nil
	default:
		return c.apiError(status, body)
	}
}

// DeleteBranch implements domain.TableClient. Deleting an absent branch
// succeeds, so callers can clean up without checking first.
func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/v1/branches/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return c.apiError(status, body)
	}
}

// MergeBranch implements domain.TableClient.
func (c *Client) MergeBranch(ctx context.Context, source, into string) error {
	payload := struct {
		Into string `json:"into"`
	}{Into: into}

	status, body, err := c.do(ctx, http.MethodPost, "/v1/branches/"+url.PathEscape(source)+"/merge", payload, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.apiError(status, body)
	}
	return nil
}

// Query implements domain.TableClient. The SQL runs against the given
// ref, so audit checks observe staged data without touching main.
func (c *Client) Query(ctx context.Context, sqlText, ref string) (*domain.Tabular, error) {
	payload := struct {
		SQL string `json:"sql"`
		Ref string `json:"ref"`
	}{SQL: sqlText, Ref: ref}

	var out struct {
		Columns  []string        `json:"columns"`
		Rows     [][]interface{} `json:"rows"`
		RowCount int             `json:"row_count"`
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/query", payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	rowCount := out.RowCount
	if rowCount == 0 {
		rowCount = len(out.Rows)
	}
	return &domain.Tabular{Columns: out.Columns, Rows: out.Rows, RowCount: rowCount}, nil
}

// Ingest implements domain.WriteDelegate. The service expands the glob
// in search_uri and loads every matching parquet object on the branch.
func (c *Client) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
	payload := struct {
		SearchURI string `json:"search_uri"`
		Namespace string `json:"namespace"`
		Table     string `json:"table"`
		Branch    string `json:"branch"`
	}{
		SearchURI: joinSearchURI(req.SourceURI, req.Pattern),
		Namespace: req.Namespace,
		Table:     req.Table,
		Branch:    req.Branch,
	}

	var out struct {
		RowsIngested int64 `json:"rows_ingested"`
		FilesMatched int   `json:"files_matched"`
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/imports", payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, c.apiError(status, body)
	}

	return &domain.IngestStats{
		Table:           req.Table,
		Branch:          req.Branch,
		FilesDiscovered: out.FilesMatched,
		RowsIngested:    out.RowsIngested,
	}, nil
}

// Transform implements domain.WriteDelegate. Transform jobs run
// asynchronously: the service returns a job id and the client polls
// until the job reaches a terminal state or ctx expires.
func (c *Client) Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformStats, error) {
	payload := struct {
		Namespace   string `json:"namespace"`
		SourceTable string `json:"source_table"`
		TargetTable string `json:"target_table"`
		Branch      string `json:"branch"`
	}{
		Namespace:   req.Namespace,
		SourceTable: req.SourceTable,
		TargetTable: req.TargetTable,
		Branch:      req.Branch,
	}

	var accepted struct {
		JobID string `json:"job_id"`
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/transforms", payload, &accepted)
	if err != nil {
		return nil, err
	}
	if status != http.StatusAccepted && status != http.StatusOK && status != http.StatusCreated {
		return nil, c.apiError(status, body)
	}
	if accepted.JobID == "" {
		return nil, fmt.Errorf("transform submission returned no job id")
	}

	final, err := c.waitForJob(ctx, accepted.JobID)
	if err != nil {
		return nil, err
	}
	return &domain.TransformStats{
		SourceTable:     req.SourceTable,
		TargetTable:     req.TargetTable,
		Branch:          req.Branch,
		JobID:           accepted.JobID,
		RowsTransformed: final.RowsTransformed,
	}, nil
}

type jobStatus struct {
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	Error           string `json:"error"`
	RowsTransformed int64  `json:"rows_transformed"`
}

func (c *Client) waitForJob(ctx context.Context, jobID string) (jobStatus, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var job jobStatus
		status, body, err := c.do(ctx, http.MethodGet, "/v1/transforms/"+url.PathEscape(jobID), nil, &job)
		if err != nil {
			return jobStatus{}, fmt.Errorf("transform job status: %w", err)
		}
		if status != http.StatusOK {
			return jobStatus{}, c.apiError(status, body)
		}

		switch job.Status {
		case JobSucceeded:
			return job, nil
		case JobFailed:
			errMsg := job.Error
			if errMsg == "" {
				errMsg = "job did not complete successfully"
			}
			return jobStatus{}, fmt.Errorf("transform job %s failed: %s", jobID, errMsg)
		}

		select {
		case <-ctx.Done():
			return jobStatus{}, fmt.Errorf("wait for transform job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Ping performs a health check against the service.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}
	return nil
}

// do executes one API call with retries and optionally decodes a 2xx
// response body into out. It returns the final status and raw body so
// callers can map non-2xx statuses to domain errors.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, []byte, error) {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
	}

	requestID := uuid.New().String()
	backoff := retry.WithCappedDuration(c.maxDelay, retry.NewFibonacci(c.baseDelay))
	backoff = retry.WithMaxRetries(uint64(c.maxAttempts-1), backoff)

	var status int
	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		status, body, attemptErr = c.roundTrip(ctx, method, path, payload, requestID)
		if attemptErr != nil {
			c.logger.Warn("lakehouse request failed", "method", method, "path", path, "error", attemptErr)
			return retry.RetryableError(attemptErr)
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			c.logger.Warn("lakehouse request rejected", "method", method, "path", path, "status", status)
			return retry.RetryableError(fmt.Errorf("lakehouse returned status %d", status))
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out != nil && status < http.StatusMultipleChoices {
		if err := json.Unmarshal(body, out); err != nil {
			return 0, nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return status, body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, requestID string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// apiError maps a non-2xx response to a domain error, preferring the
// service's message envelope over the raw body.
func (c *Client) apiError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}

	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound("%s", msg)
	case http.StatusConflict:
		return domain.ErrConflict("%s", msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation("%s", msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("lakehouse rejected credentials: %s", msg)
	default:
		return fmt.Errorf("lakehouse returned status %d: %s", status, msg)
	}
}

// joinSearchURI builds the glob the import endpoint expands, keeping an
// already-globbed source URI untouched.
func joinSearchURI(sourceURI, pattern string) string {
	if strings.ContainsAny(sourceURI, "*?[") || pattern == "" {
		return sourceURI
	}
	return strings.TrimRight(sourceURI, "/") + "/" + pattern
}
