package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ingest/kafka"
)

// newIngestKafkaCmd runs the optional Kafka-backed ingestion source (spec
// §11/§12 enrichment): it consumes usage messages from brokers/topic and
// hands each to the same ingest.Pipeline the `ingest` command uses, in
// Async mode, until the context is cancelled.
func newIngestKafkaCmd() *cobra.Command {
	var brokers, topic, groupID string

	cmd := &cobra.Command{
		Use:   "ingest-kafka",
		Short: "Consume usage records from Kafka and ingest them asynchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			consumer, err := kafka.NewConsumer(strings.Split(brokers, ","), groupID, []string{topic}, appCtx.pipeline)
			if err != nil {
				return err
			}
			defer consumer.Close()
			return consumer.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&brokers, "brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	cmd.Flags().StringVar(&topic, "topic", kafka.DefaultTopic, "topic to consume usage messages from")
	cmd.Flags().StringVar(&groupID, "group", "cost-engine", "consumer group id")
	return cmd
}
