package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/internal/httpclient"
	"github.com/buildharbor/signing-adapter/internal/metrics"
	"github.com/buildharbor/signing-adapter/internal/rate"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Client wraps low-level HTTP communication with the signing authority portal.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs a new portal client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "portal", func(status int, body []byte) error {
		var errResp portalErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("portal.client_error",
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
		return fmt.Errorf("portal returned %d: %s", status, errMsg)
	})
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// Authenticate performs a session login against the portal.
// POST /v1/auth/session
func (c *Client) Authenticate(ctx context.Context, account Account) (AuthData, error) {
	req := authRequest{
		Username: account.Username,
		Password: account.Password,
		TeamID:   account.TeamID,
	}

	var data AuthData
	if err := c.postJSON(ctx, "", "/v1/auth/session", req, &data); err != nil {
		metrics.IncPortalRequest("auth", "error")
		return AuthData{}, fmt.Errorf("%w: %v", model.ErrAuthentication, err)
	}
	if data.SessionToken == "" {
		metrics.IncPortalRequest("auth", "error")
		return AuthData{}, fmt.Errorf("%w: portal returned empty session token", model.ErrAuthentication)
	}

	metrics.IncPortalRequest("auth", "ok")
	c.logger.Info("portal.authenticated",
		zap.String("username", account.Username),
		zap.String("team_id", data.TeamID))
	return data, nil
}

// EnsureAppExists registers the app record with the portal. The portal treats
// registration as idempotent: re-registering an existing app succeeds.
// POST /v1/apps
func (c *Client) EnsureAppExists(ctx context.Context, session *Session, experienceName, bundleID string) error {
	req := registerAppRequest{
		Name:             experienceName,
		BundleIdentifier: bundleID,
		TeamID:           session.AuthData.TeamID,
	}

	if err := c.postJSON(ctx, session.AuthData.SessionToken, "/v1/apps", req, nil); err != nil {
		metrics.IncPortalRequest("register_app", "error")
		return fmt.Errorf("%w: %v", model.ErrAppRegistration, err)
	}

	metrics.IncPortalRequest("register_app", "ok")
	c.logger.Info("portal.app_registered",
		zap.String("experience", experienceName),
		zap.String("bundle_id", bundleID))
	return nil
}

// Revoke revokes the given previously-cleared credential kinds with the portal.
// POST /v1/credentials/revoke
func (c *Client) Revoke(ctx context.Context, session *Session, kinds credential.KindSet) error {
	req := revokeRequest{Kinds: kinds.Strings()}

	if err := c.postJSON(ctx, session.AuthData.SessionToken, "/v1/credentials/revoke", req, nil); err != nil {
		metrics.IncPortalRequest("revoke", "error")
		return fmt.Errorf("revoke credentials: %w", err)
	}

	metrics.IncPortalRequest("revoke", "ok")
	c.logger.Info("portal.credentials_revoked",
		zap.Strings("kinds", kinds.Strings()))
	return nil
}

// Generate produces new credential values for the given kinds using the
// accumulated generation metadata (e.g. the distribution certificate serial a
// provisioning profile must be bound to).
// POST /v1/credentials/generate
func (c *Client) Generate(ctx context.Context, session *Session, kinds []credential.Kind, metadata map[string]string) (credential.Set, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	req := generateRequest{Kinds: names, Metadata: metadata}

	var resp generateResponse
	if err := c.postJSON(ctx, session.AuthData.SessionToken, "/v1/credentials/generate", req, &resp); err != nil {
		metrics.IncPortalRequest("generate", "error")
		return nil, fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}

	generated := make(credential.Set, len(resp.Credentials))
	for name, value := range resp.Credentials {
		k := credential.Kind(name)
		if !k.IsValid() {
			return nil, fmt.Errorf("%w: portal returned unknown credential kind %q", model.ErrGeneration, name)
		}
		generated[k] = value
	}

	metrics.IncPortalRequest("generate", "ok")
	c.logger.Info("portal.credentials_generated",
		zap.Strings("kinds", names))
	return generated, nil
}

// postJSON performs an authenticated POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, sessionToken, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	return c.exec.DoJSON(ctx, req, "portal", out)
}
