package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/Jimkik/GeoData-Project/internal/core/observability"
)

type Publisher interface {
	Publish(ctx context.Context, ev IngestEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, IngestEvent) error { return nil }
func (Nop) Close() error                              { return nil }

type Config struct {
	Brokers []string
	Topic   string
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaPublisher dials the brokers with a synchronous producer that waits
// for all in-sync replicas.
func NewKafkaPublisher(cfg Config, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers")
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = 5 * time.Second

	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create sync producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(p, cfg.Topic, logger), nil
}

func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = "geo-ingest"
	}
	return &KafkaPublisher{producer: p, topic: topic, logger: logger}
}

// Publish sends ev keyed by collection so runs on one collection stay ordered.
func (k *KafkaPublisher) Publish(ctx context.Context, ev IngestEvent) error {
	if err := ev.Validate(); err != nil {
		obs.IncEventPublished(err)
		return fmt.Errorf("invalid ingest event: %w", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		obs.IncEventPublished(err)
		return fmt.Errorf("marshal ingest event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Collection),
		Value: sarama.ByteEncoder(b),
	}
	partition, offset, err := k.producer.SendMessage(msg)
	obs.IncEventPublished(err)
	if err != nil {
		return fmt.Errorf("send ingest event: %w", err)
	}
	k.logger.DebugContext(ctx, "ingest event published",
		"topic", k.topic,
		"partition", partition,
		"offset", offset,
		"run_id", ev.RunID)
	return nil
}

func (k *KafkaPublisher) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("close producer: %w", err)
	}
	return nil
}
