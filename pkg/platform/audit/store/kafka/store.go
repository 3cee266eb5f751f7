// Package kafka forwards audit events to a Kafka topic. Kafka is the system
// of record for audit; reading back is left to downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
)

// ErrReadUnsupported is returned by ListByDriver; the topic is write-only here.
var ErrReadUnsupported = errors.New("kafka audit store does not support reads")

// Producer is the slice of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

// NewClient builds a franz-go client for the given brokers.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

// Append publishes event keyed by driver so one driver's trail stays ordered
// within a partition. Company-level events are keyed by company.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.DriverID.String()
	if event.DriverID.IsNil() && event.CompanyID != "" {
		key = event.CompanyID
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event to %s: %w", s.topic, err)
	}
	return nil
}

func (s *Store) ListByDriver(context.Context, domain.DriverID) ([]audit.Event, error) {
	return nil, ErrReadUnsupported
}
