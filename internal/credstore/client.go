package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/internal/httpclient"
	"github.com/buildharbor/signing-adapter/internal/metrics"
	"github.com/buildharbor/signing-adapter/internal/rate"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Client talks to the credential-store backend over HTTP. It implements Store.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

var _ Store = (*Client)(nil)

// NewClient constructs a new credential-store client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "credstore", func(status int, body []byte) error {
		var errResp storeErrorResponse
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("credstore.client_error",
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
		return fmt.Errorf("credential store returned %d: %s", status, errMsg)
	})
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// Fetch returns every credential currently stored for the target.
// GET /v1/credentials
func (c *Client) Fetch(ctx context.Context, target Target) (credential.Set, error) {
	var resp fetchResponse
	if err := c.getJSON(ctx, "/v1/credentials", target, &resp); err != nil {
		metrics.IncCredentialOp("fetch", "error")
		return nil, fmt.Errorf("fetch credentials: %w", err)
	}

	creds := make(credential.Set, len(resp.Credentials))
	for name, value := range resp.Credentials {
		k := credential.Kind(name)
		if !k.IsValid() {
			return nil, fmt.Errorf("fetch credentials: store returned unknown kind %q", name)
		}
		creds[k] = value
	}

	metrics.IncCredentialOp("fetch", "ok")
	c.logger.Debug("credstore.fetched",
		zap.String("client_id", target.ClientID),
		zap.String("experience", target.ExperienceName),
		zap.Int("count", len(creds)))
	return creds, nil
}

// Clear removes the given kinds from the stored set and reports which of them
// actually existed. Clearing a kind that is not stored is not an error.
// POST /v1/credentials/clear
func (c *Client) Clear(ctx context.Context, target Target, kinds credential.KindSet) (credential.KindSet, error) {
	req := clearRequest{
		ClientID:       target.ClientID,
		ExperienceName: target.ExperienceName,
		Kinds:          kinds.Strings(),
	}

	var resp clearResponse
	if err := c.postJSON(ctx, "/v1/credentials/clear", req, &resp); err != nil {
		metrics.IncCredentialOp("clear", "error")
		return nil, fmt.Errorf("clear credentials: %w", err)
	}

	removed := make(credential.KindSet, len(resp.Removed))
	for _, name := range resp.Removed {
		k := credential.Kind(name)
		if !k.IsValid() {
			return nil, fmt.Errorf("clear credentials: store returned unknown kind %q", name)
		}
		removed.Add(k)
	}

	metrics.IncCredentialOp("clear", "ok")
	c.logger.Info("credstore.cleared",
		zap.String("client_id", target.ClientID),
		zap.Strings("requested", kinds.Strings()),
		zap.Strings("removed", removed.Strings()))
	return removed, nil
}

// DetermineMissing asks the store which credential kinds the target still
// lacks. A nil result means the stored set already satisfies every
// requirement and no further credential work is needed.
// GET /v1/credentials/missing
func (c *Client) DetermineMissing(ctx context.Context, target Target) ([]credential.Kind, error) {
	var resp missingResponse
	if err := c.getJSON(ctx, "/v1/credentials/missing", target, &resp); err != nil {
		metrics.IncCredentialOp("missing", "error")
		return nil, fmt.Errorf("determine missing credentials: %w", err)
	}

	if resp.Missing == nil {
		metrics.IncCredentialOp("missing", "ok")
		return nil, nil
	}

	missing := make([]credential.Kind, 0, len(*resp.Missing))
	for _, name := range *resp.Missing {
		k := credential.Kind(name)
		if !k.IsValid() {
			return nil, fmt.Errorf("determine missing credentials: store returned unknown kind %q", name)
		}
		missing = append(missing, k)
	}

	metrics.IncCredentialOp("missing", "ok")
	c.logger.Debug("credstore.missing_determined",
		zap.String("client_id", target.ClientID),
		zap.Int("count", len(missing)))
	return missing, nil
}

// DistCertSerialNumber returns the serial number of the stored distribution
// certificate, used to bind newly generated provisioning profiles to it.
// GET /v1/credentials/dist-cert/serial
func (c *Client) DistCertSerialNumber(ctx context.Context, target Target) (string, error) {
	var resp serialResponse
	if err := c.getJSON(ctx, "/v1/credentials/dist-cert/serial", target, &resp); err != nil {
		metrics.IncCredentialOp("serial", "error")
		return "", fmt.Errorf("fetch dist cert serial: %w", err)
	}

	metrics.IncCredentialOp("serial", "ok")
	return resp.SerialNumber, nil
}

// Update persists the merged credential set together with generation metadata
// and any caller-owned credential references that should be bound rather than
// duplicated.
// POST /v1/credentials
func (c *Client) Update(ctx context.Context, target Target, creds credential.Set, metadata map[string]string, userCredentialIDs []string) error {
	wire := make(map[string]string, len(creds))
	for k, v := range creds {
		wire[string(k)] = v
	}
	req := updateRequest{
		ClientID:          target.ClientID,
		ExperienceName:    target.ExperienceName,
		Credentials:       wire,
		Metadata:          metadata,
		UserCredentialIDs: userCredentialIDs,
	}

	if err := c.postJSON(ctx, "/v1/credentials", req, nil); err != nil {
		metrics.IncCredentialOp("update", "error")
		return fmt.Errorf("%w: %v", model.ErrPersist, err)
	}

	metrics.IncCredentialOp("update", "ok")
	c.logger.Info("credstore.updated",
		zap.String("client_id", target.ClientID),
		zap.String("experience", target.ExperienceName),
		zap.Int("count", len(creds)))
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, target Target, out any) error {
	q := url.Values{}
	q.Set("clientId", target.ClientID)
	q.Set("experienceName", target.ExperienceName)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	return c.exec.DoJSON(ctx, req, "credstore", out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.exec.DoJSON(ctx, req, "credstore", out)
}
