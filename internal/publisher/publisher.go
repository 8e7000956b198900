package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/buildharbor/signing-adapter/internal/metrics"
	"github.com/buildharbor/signing-adapter/pkg/logger"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing canonical events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"client_id":      []string{env.ClientID},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"client_id", env.ClientID,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"client_id", env.ClientID,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// PublishRunCompleted emits canonical signing.run.completed events once a run
// has been scheduled (or has failed terminally).
func (p *Publisher) PublishRunCompleted(ctx context.Context, result model.RunResult, clientID, status string) error {
	env := newEnvelope(clientID, "evt.signing.run.v1", "signing.run.completed")

	payload, _ := json.Marshal(struct {
		model.RunResult
		Status string `json:"status"`
	}{RunResult: result, Status: status})
	env.Payload = payload

	return p.PublishEnvelope(ctx, "evt.signing.run.v1", env)
}

// PublishCredentialsUpdated emits canonical signing.credentials.updated events
// after the credential store has been mutated.
func (p *Publisher) PublishCredentialsUpdated(ctx context.Context, clientID, experienceName string, kinds []string) error {
	env := newEnvelope(clientID, "evt.signing.credentials.v1", "signing.credentials.updated")

	payload, _ := json.Marshal(struct {
		ExperienceName string   `json:"experienceName"`
		Kinds          []string `json:"kinds"`
	}{ExperienceName: experienceName, Kinds: kinds})
	env.Payload = payload

	return p.PublishEnvelope(ctx, "evt.signing.credentials.v1", env)
}

// PublishBuildScheduled emits canonical signing.build.scheduled events carrying
// the scheduler job ID.
func (p *Publisher) PublishBuildScheduled(ctx context.Context, clientID, experienceName, jobID string) error {
	env := newEnvelope(clientID, "evt.signing.build.v1", "signing.build.scheduled")

	payload, _ := json.Marshal(struct {
		ExperienceName string `json:"experienceName"`
		JobID          string `json:"jobId"`
	}{ExperienceName: experienceName, JobID: jobID})
	env.Payload = payload

	return p.PublishEnvelope(ctx, "evt.signing.build.v1", env)
}

func newEnvelope(clientID, topic, eventType string) *model.Envelope {
	return &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		ClientID:      clientID,
		Topic:         topic,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
