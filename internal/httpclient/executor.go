package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	serviceTag   string
	errorHandler func(status int, body []byte) error
}

// New creates an Executor. errorHandler is called on 4xx failure responses to
// produce a service-specific error. If nil, a default error is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	serviceTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		serviceTag:   serviceTag,
		errorHandler: errorHandler,
	}
}

// DoJSON executes req with rate limiting and retries on transport errors and
// 5xx responses, then JSON-decodes the response into out. 4xx responses are
// never retried. rateLimitKey scopes the rate limiter per client/service.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		done, err := e.attempt(req, attempt, out)
		if done {
			return err
		}
		lastErr = err

		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.serviceTag, e.retryMax+1, lastErr)
}

// attempt performs one request cycle. done=false signals a retryable failure.
func (e *Executor) attempt(req *http.Request, attempt int, out any) (done bool, err error) {
	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Warn(e.serviceTag+".http_failed",
			zap.String("url", req.URL.String()),
			zap.Error(err),
			zap.Int("attempt", attempt))
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	elapsed := time.Since(start)

	if resp.StatusCode >= 500 {
		e.logger.Warn(e.serviceTag+".server_error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", req.URL.String()),
			zap.Duration("latency", elapsed))
		return false, fmt.Errorf("%s server error: %d", e.serviceTag, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		if e.errorHandler != nil {
			return true, e.errorHandler(resp.StatusCode, body)
		}
		return true, fmt.Errorf("%s returned %d", e.serviceTag, resp.StatusCode)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(e.serviceTag+".decode_failed",
				zap.Error(err),
				zap.String("url", req.URL.String()),
				zap.String("body", string(body)))
			return true, fmt.Errorf("decode failed: %w", err)
		}
	}

	e.logger.Debug(e.serviceTag+".http_success",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return true, nil
}
