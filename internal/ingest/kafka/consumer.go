package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ingest"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
)

// Consumer wraps a Sarama consumer group, decoding each message as a
// UsageMessage and handing it to an ingest.Pipeline in Async mode — a
// malformed or unpriceable message never blocks the partition, it is
// logged and the offset is still committed.
type Consumer struct {
	group    sarama.ConsumerGroup
	topics   []string
	pipeline *ingest.Pipeline
	log      *slog.Logger
}

// NewConsumer creates a consumer group bound to brokers/groupID, grounded
// on the same Sarama config the teacher's messaging/kafka consumer uses
// (round-robin rebalance, oldest-offset reset, 30s session timeout).
func NewConsumer(brokers []string, groupID string, topics []string, pipeline *ingest.Pipeline) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("ingest/kafka: creating consumer group: %w", err)
	}

	return &Consumer{group: group, topics: topics, pipeline: pipeline, log: logx.WithComponent("ingest.kafka")}, nil
}

// Run consumes until ctx is cancelled, rejoining the group after every
// rebalance the way sarama's consumer-group API requires.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			return fmt.Errorf("ingest/kafka: consume: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close shuts down the consumer group.
func (c *Consumer) Close() error { return c.group.Close() }

// Setup satisfies sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup satisfies sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes and ingests every message on the claim.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := context.Background()

	for msg := range claim.Messages() {
		if err := c.handle(ctx, msg); err != nil {
			c.log.Error("ingest/kafka: message rejected",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err.Error())
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var wire UsageMessage
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		return fmt.Errorf("decoding usage message: %w", err)
	}

	input := domain.UsageIngestInput{
		Timestamp:        wire.Timestamp,
		Provider:         domain.Provider(wire.Provider),
		Model:            domain.ModelDescriptor{Name: wire.ModelName, Version: wire.ModelVersion, ContextWindow: wire.ContextWindow},
		OrganizationID:   wire.OrganizationID,
		ProjectID:        wire.ProjectID,
		UserID:           wire.UserID,
		PromptTokens:     wire.PromptTokens,
		CompletionTokens: wire.CompletionTokens,
		TotalTokens:      wire.TotalTokens,
		CachedTokens:     wire.CachedTokens,
		ReasoningTokens:  wire.ReasoningTokens,
		LatencyMs:        wire.LatencyMs,
		Tags:             domain.Tags(wire.Tags),
	}
	if wire.ID != "" {
		id, err := ids.Parse(wire.ID)
		if err != nil {
			return fmt.Errorf("parsing usage message id: %w", err)
		}
		input.ID = id
	}
	if len(wire.Metadata) > 0 {
		var md domain.Metadata
		if err := json.Unmarshal(wire.Metadata, &md); err != nil {
			return fmt.Errorf("decoding usage message metadata: %w", err)
		}
		input.Metadata = md
	}

	_, err := c.pipeline.Ingest(ctx, input, ingest.Async, time.Now())
	return err
}
