package publishapi

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
	"github.com/buildharbor/signing-adapter/pkg/model"
)

type publishErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type releasesRequest struct {
	ExperienceName string `json:"experienceName"`
	Platform       string `json:"platform"`
}

type releasesResponse struct {
	PublishedIDs []string `json:"publishedIds"`
}

// Client talks to the publish service, which owns project metadata and
// published releases.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs a new publish-service client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "publish", func(status int, body []byte) error {
		var errResp publishErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("publish.client_error",
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
		return fmt.Errorf("publish service returned %d: %s", status, errMsg)
	})
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// FetchMetadata resolves the project metadata a run needs. Self-hosted
// projects carry a public manifest URL and are fetched directly; hosted
// projects are looked up by experience name.
func (c *Client) FetchMetadata(ctx context.Context, req model.BuildRequest) (model.ProjectMetadata, error) {
	var reqURL string
	if req.PublicURL != "" {
		reqURL = req.PublicURL
	} else {
		reqURL = fmt.Sprintf("%s/v1/experiences/%s/metadata?platform=%s",
			c.baseURL, url.PathEscape(req.ExperienceName), url.QueryEscape(req.Platform))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.ProjectMetadata{}, fmt.Errorf("%w: %v", model.ErrMetadataFetch, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var meta model.ProjectMetadata
	if err := c.exec.DoJSON(ctx, httpReq, "publish", &meta); err != nil {
		return model.ProjectMetadata{}, fmt.Errorf("%w: %v", model.ErrMetadataFetch, err)
	}
	if meta.BundleIdentifier == "" {
		return model.ProjectMetadata{}, fmt.Errorf("%w: manifest has no bundle identifier", model.ErrMetadataFetch)
	}

	c.logger.Info("publish.metadata_fetched",
		zap.String("experience", meta.ExperienceName),
		zap.String("bundle_id", meta.BundleIdentifier),
		zap.String("sdk", meta.SDKVersion))
	return meta, nil
}

// EnsureReleaseExists verifies the experience has at least one published
// release for the platform and returns the publish IDs the build will embed.
// POST /v1/releases/ensure
func (c *Client) EnsureReleaseExists(ctx context.Context, experienceName, platform string) ([]string, error) {
	body, err := json.Marshal(releasesRequest{ExperienceName: experienceName, Platform: platform})
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/v1/releases/ensure", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp releasesResponse
	if err := c.exec.DoJSON(ctx, httpReq, "publish", &resp); err != nil {
		return nil, fmt.Errorf("ensure release exists: %w", err)
	}
	if len(resp.PublishedIDs) == 0 {
		return nil, fmt.Errorf("no published release for %s on %s", experienceName, platform)
	}

	c.logger.Info("publish.release_ensured",
		zap.String("experience", experienceName),
		zap.Int("published", len(resp.PublishedIDs)))
	return resp.PublishedIDs, nil
}
