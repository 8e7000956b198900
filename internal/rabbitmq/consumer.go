package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/internal/metrics"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Consumer consumes build requests from RabbitMQ
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	builds   BuildService
	provider string
	logger   *zap.Logger
	done     chan struct{}
}

// BuildService executes one signing run per build request
type BuildService interface {
	Execute(ctx context.Context, req model.BuildRequest) (*model.RunResult, error)
}

// NewConsumer creates a new RabbitMQ consumer
func NewConsumer(url, provider string, builds BuildService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:     conn,
		channel:  channel,
		builds:   builds,
		provider: provider,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start starts consuming build requests
func (c *Consumer) Start(ctx context.Context) error {
	buildQueue := fmt.Sprintf("outbound.builds.requested.%s", c.provider)

	if _, err := c.channel.QueueDeclare(buildQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", buildQueue, err)
	}

	msgs, err := c.channel.Consume(buildQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", buildQueue, err)
	}

	c.logger.Info("Started consuming from RabbitMQ",
		zap.String("buildQueue", buildQueue),
	)

	go c.consumeBuildRequests(ctx, buildQueue, msgs)

	return nil
}

func (c *Consumer) consumeBuildRequests(ctx context.Context, queue string, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Build requests channel closed")
				return
			}

			c.logger.Debug("Received build request message", zap.String("body", string(msg.Body)))

			var req model.BuildRequest
			if err := json.Unmarshal(msg.Body, &req); err != nil {
				c.logger.Error("Failed to unmarshal BuildRequest", zap.Error(err))
				metrics.IncQueueMessage(queue, "malformed")
				msg.Nack(false, false)
				continue
			}
			if err := req.Validate(); err != nil {
				c.logger.Error("Rejected invalid build request", zap.Error(err))
				metrics.IncQueueMessage(queue, "malformed")
				msg.Nack(false, false)
				continue
			}

			if _, err := c.builds.Execute(ctx, req); err != nil {
				c.logger.Error("Failed to execute build request", zap.Error(err))
				metrics.IncQueueMessage(queue, "error")
				// A conflicting run will still be in flight after a requeue
				// round-trip, so drop those instead of spinning on them.
				msg.Nack(false, !errors.Is(err, model.ErrBuildInProgress))
				continue
			}

			metrics.IncQueueMessage(queue, "ok")
			msg.Ack(false)
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
