package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectMetadata describes the project a build request targets. It is fetched
// once from the publish service and treated as immutable for the rest of the run.
type ProjectMetadata struct {
	Username         string `json:"username"`
	ExperienceName   string `json:"experienceName"`
	BundleIdentifier string `json:"bundleIdentifier"`
	SDKVersion       string `json:"sdkVersion"`
}

// CredentialOptions carries the credential-related flags of a build request.
// ClearPushCert is deprecated but kept for back-compat with older callers.
type CredentialOptions struct {
	ClearCredentials         bool `json:"clearCredentials"`
	ClearDistCert            bool `json:"clearDistCert"`
	ClearPushKey             bool `json:"clearPushKey"`
	ClearPushCert            bool `json:"clearPushCert"`
	ClearProvisioningProfile bool `json:"clearProvisioningProfile"`
	RevokeCredentials        bool `json:"revokeCredentials"`
}

// PlannedCredential is a credential the caller supplies up front instead of
// having the adapter generate it. CredentialID references an existing stored
// credential so persistence binds it instead of duplicating it.
type PlannedCredential struct {
	CredentialID string `json:"credentialId,omitempty"`
	Value        string `json:"value"`
}

// CredentialPlan is the declarative answer set for the prompt step on
// non-interactive runs. Kinds not listed under Provide default to generation.
type CredentialPlan struct {
	Provide  map[string]PlannedCredential `json:"provide,omitempty"`
	Metadata map[string]string            `json:"metadata,omitempty"`
}

// BuildRequest is the inbound command that starts a signing run, arriving via
// the HTTP API or the RabbitMQ build queue.
type BuildRequest struct {
	ClientID       string            `json:"clientId"`
	ExperienceName string            `json:"experienceName"`
	Platform       string            `json:"platform"`
	PublicURL      string            `json:"publicUrl,omitempty"`
	Options        CredentialOptions `json:"options"`
	Plan           *CredentialPlan   `json:"plan,omitempty"`
}

// Validate checks the request fields that must be present before a run starts.
func (r BuildRequest) Validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if r.Platform != "ios" {
		return fmt.Errorf("unsupported platform %q", r.Platform)
	}
	if r.ExperienceName == "" && r.PublicURL == "" {
		return fmt.Errorf("either experienceName or publicUrl is required")
	}
	return nil
}

// RunResult summarizes a completed signing run.
type RunResult struct {
	RunID        string   `json:"runId"`
	BuildID      string   `json:"buildId"`
	PublishedIDs []string `json:"publishedIds,omitempty"`
}

// RunEvent is a single journaled step of a signing run.
type RunEvent struct {
	RunID          string    `json:"run_id"`
	ClientID       string    `json:"client_id"`
	ExperienceName string    `json:"experience_name"`
	Platform       string    `json:"platform"`
	Step           string    `json:"step"`
	Status         string    `json:"status"` // "ok" | "error"
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Envelope is the canonical event envelope published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	ClientID      string          `json:"client_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}
