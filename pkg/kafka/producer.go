package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Facility event types emitted on the output topic
const (
	EventFacilityCreated      = "facility.created"
	EventFacilityMatched      = "facility.matched"
	EventFacilityMatchPending = "facility.match_pending"
	EventFacilityMerged       = "facility.merged"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// FacilityEvent represents a facility lifecycle event
type FacilityEvent struct {
	EventType        string          `json:"event_type"` // facility.created, facility.matched, facility.match_pending, facility.merged
	FacilityID       string          `json:"facility_id,omitempty"`
	TargetFacilityID string          `json:"target_facility_id,omitempty"` // surviving identity for merges
	ListItemID       string          `json:"list_item_id,omitempty"`
	SourceID         string          `json:"source_id,omitempty"`
	ContributorID    string          `json:"contributor_id,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	Results          json.RawMessage `json:"results,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// PublishFacilityEvent publishes a facility event to Kafka
func (p *Producer) PublishFacilityEvent(ctx context.Context, event *FacilityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishFacilityEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.FacilityID
	if key == "" {
		key = event.ListItemID
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish facility event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"facility_id": event.FacilityID,
	}).Debug("Published facility event")

	return nil
}

// PublishFacilityEvents publishes multiple facility events in a batch
func (p *Producer) PublishFacilityEvents(ctx context.Context, events []*FacilityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishFacilityEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		key := event.FacilityID
		if key == "" {
			key = event.ListItemID
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(key),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish facility events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published facility events batch")

	return nil
}
