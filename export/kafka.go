// Package export optionally bridges delivered RTPS samples to a Kafka
// topic, using a franz-go + kadm client/producer shape (here for
// producing, as opposed to consuming).
package export

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaBridge publishes each delivered CacheChange payload as one Kafka
// record, keyed by the originating writer's GUID so downstream consumers
// can reconstruct per-writer ordering.
type KafkaBridge struct {
	zerolog.Logger

	client *kgo.Client
	topic  string
}

func NewKafkaBridge(ctx context.Context, broker, topic string, logger zerolog.Logger) (*KafkaBridge, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("export: kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.Metadata(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("export: kafka metadata: %w", err)
	}

	return &KafkaBridge{Logger: logger, client: client, topic: topic}, nil
}

// Publish sends one sample asynchronously; delivery errors are logged, not
// returned -- the export bridge is a pure observer and never gates
// protocol processing.
func (b *KafkaBridge) Publish(writerGuid string, payload []byte) {
	rec := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(writerGuid),
		Value: payload,
	}
	b.client.Produce(context.Background(), rec, func(_ *kgo.Record, err error) {
		if err != nil {
			b.Warn().Err(err).Msg("kafka publish failed")
		}
	})
}

func (b *KafkaBridge) Close() {
	b.client.Close()
}
