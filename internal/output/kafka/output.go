package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/output"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
)

// Output publishes changes to Kafka. Records are keyed by aggregate so a
// transaction's changes stay on one partition, in order.
type Output struct {
	producer sarama.SyncProducer
	cfg      config.OutputConfig
}

func NewOutput(producer sarama.SyncProducer, cfg config.OutputConfig) *Output {
	return &Output{
		producer: producer,
		cfg:      cfg,
	}
}

// NewSyncProducer dials the configured brokers. Producer metrics are
// reported into registry.
func NewSyncProducer(cfg config.OutputConfig, registry gometrics.Registry) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = "dealtrail"
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = false
	if registry != nil {
		sc.MetricRegistry = registry
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewSyncProducer: %w", err)
	}
	return producer, nil
}

func (o *Output) PushChange(ctx context.Context, change domain.ChangeRecord, channelName string) error {
	bytes, err := json.Marshal(&change)
	if err != nil {
		return fmt.Errorf("json.Marshall: %w", err)
	}
	key := uuid.New().String()
	if agg, ok := output.AggregateOf(change); ok {
		key = agg.Key()
	}
	_, _, err = o.producer.SendMessage(&sarama.ProducerMessage{
		Topic: output.ChannelName(o.cfg, channelName),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("method"), Value: []byte(change.Method)},
		},
	})
	if err != nil {
		return fmt.Errorf("o.producer.SendMessage: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return o.producer.Close()
}
