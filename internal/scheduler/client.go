package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/httpclient"
	"github.com/buildharbor/signing-adapter/internal/rate"
)

// JobStatus is the scheduler's view of the latest build job for a target.
type JobStatus struct {
	InProgress bool   `json:"inProgress"`
	JobID      string `json:"jobId,omitempty"`
}

// ScheduleRequest enqueues a signed build with the job scheduler.
type ScheduleRequest struct {
	ClientID       string            `json:"clientId"`
	ExperienceName string            `json:"experienceName"`
	Platform       string            `json:"platform"`
	SDKVersion     string            `json:"sdkVersion"`
	PublishedIDs   []string          `json:"publishedIds,omitempty"`
	ExtraArgs      map[string]string `json:"extraArgs,omitempty"`
}

type scheduleResponse struct {
	JobID string `json:"jobId"`
}

type schedulerErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the build scheduler service.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs a new scheduler client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "scheduler", func(status int, body []byte) error {
		var errResp schedulerErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("scheduler.client_error",
			zap.Int("status", status),
			zap.String("error", errResp.Error),
			zap.String("message", errResp.Message))

		errMsg := errResp.Message
		if errMsg == "" {
			errMsg = errResp.Error
		}
		if errMsg == "" {
			errMsg = string(body)
		}
		return fmt.Errorf("scheduler returned %d: %s", status, errMsg)
	})
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// Status returns the latest job state for the target on the given platform
// and SDK version.
// GET /v1/jobs/status
func (c *Client) Status(ctx context.Context, clientID, experienceName, platform, sdkVersion string) (JobStatus, error) {
	q := url.Values{}
	q.Set("clientId", clientID)
	q.Set("experienceName", experienceName)
	q.Set("platform", platform)
	q.Set("sdkVersion", sdkVersion)

	reqURL := fmt.Sprintf("%s/v1/jobs/status?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return JobStatus{}, err
	}
	req.Header.Set("Accept", "application/json")

	var status JobStatus
	if err := c.exec.DoJSON(ctx, req, "scheduler", &status); err != nil {
		return JobStatus{}, fmt.Errorf("fetch job status: %w", err)
	}
	return status, nil
}

// Schedule enqueues the build and returns the scheduler's job ID.
// POST /v1/jobs
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/v1/jobs", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp scheduleResponse
	if err := c.exec.DoJSON(ctx, httpReq, "scheduler", &resp); err != nil {
		return "", fmt.Errorf("schedule build: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("schedule build: scheduler returned no job id")
	}

	c.logger.Info("scheduler.build_scheduled",
		zap.String("job_id", resp.JobID),
		zap.String("experience", req.ExperienceName),
		zap.String("platform", req.Platform))
	return resp.JobID, nil
}
