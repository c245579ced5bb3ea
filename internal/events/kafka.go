package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer is the subset of *kgo.Client used by the relay.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// KafkaRelayConfig configures a KafkaRelay. When Producer is nil a franz-go
// client is created for Brokers.
type KafkaRelayConfig struct {
	Brokers  []string
	Topic    string
	Producer Producer
	Logger   *zap.Logger
}

// KafkaRelay forwards events from a subscription to a Kafka topic.
type KafkaRelay struct {
	producer Producer
	client   *kgo.Client
	topic    string
	logger   *zap.Logger
}

// NewKafkaRelay constructs a relay.
func NewKafkaRelay(cfg KafkaRelayConfig) (*KafkaRelay, error) {
	if cfg.Topic == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	relay := &KafkaRelay{producer: cfg.Producer, topic: cfg.Topic, logger: logger.Named("kafka-relay")}
	if relay.producer == nil {
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("events: at least one kafka broker is required")
		}
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.DefaultProduceTopic(cfg.Topic),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.ProducerLinger(10*time.Millisecond),
			kgo.RequestRetries(10),
		)
		if err != nil {
			return nil, fmt.Errorf("events: create kafka client: %w", err)
		}
		relay.client = client
		relay.producer = client
	}
	return relay, nil
}

// Run forwards events until ctx is done or stream is closed. Produce failures
// are logged and do not stop the relay.
func (r *KafkaRelay) Run(ctx context.Context, stream <-chan Event) error {
	r.logger.Info("kafka relay started", zap.String("topic", r.topic))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("kafka relay stopped")
			return nil
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			if err := r.forward(ctx, event); err != nil {
				r.logger.Warn("kafka produce failed", zap.String("kind", string(event.Kind)), zap.Error(err))
			}
		}
	}
}

// Close releases the client created by NewKafkaRelay.
func (r *KafkaRelay) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

func (r *KafkaRelay) forward(ctx context.Context, event Event) error {
	record, err := r.record(event)
	if err != nil {
		return err
	}
	return r.producer.ProduceSync(ctx, record).FirstErr()
}

func (r *KafkaRelay) record(event Event) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", event.Kind, err)
	}
	key := strconv.FormatInt(event.ContextID, 10)
	if event.Doi != nil {
		key += ":" + strconv.FormatInt(event.Doi.ID, 10)
	}
	return &kgo.Record{
		Topic: r.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}, nil
}
