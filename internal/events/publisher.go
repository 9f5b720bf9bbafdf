// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"deepspeak/internal/observability/metrics"
	"deepspeak/internal/schema"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes transcript events to separate Kafka topics.
type Publisher struct {
	writerChunks      messageWriter
	writerTranscripts messageWriter
	principal         string
	topicChunks       string
	topicTranscripts  string
	enabled           bool
	validator         *schema.Validator
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicChunks      string
	TopicTranscripts string
	Principal        string
	Enabled          bool
	// Metrics defaults to metrics.DefaultMetrics.
	Metrics *metrics.Metrics
}

// New creates a new Kafka event publisher with separate topics for chunk and run events.
func New(cfg *Config) *Publisher {
	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: schema.New(),
			metrics:   metrics.DefaultMetrics,
		}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	p := &Publisher{
		principal:        cfg.Principal,
		topicChunks:      cfg.TopicChunks,
		topicTranscripts: cfg.TopicTranscripts,
		validator:        schema.New(),
		metrics:          m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerChunks = newWriter(cfg.Brokers, cfg.TopicChunks, transport)
	p.writerTranscripts = newWriter(cfg.Brokers, cfg.TopicTranscripts, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicChunks", cfg.TopicChunks).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishChunk publishes a chunk event to the chunk topic.
func (p *Publisher) PublishChunk(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerChunks, p.topicChunks, "chunk", key, event)
}

// PublishTranscript publishes a run event to the transcript topic.
func (p *Publisher) PublishTranscript(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, "transcript", key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventTypeOf(payload, topic))},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// eventTypeOf reads the eventType field of payload, defaulting to the topic.
func eventTypeOf(payload []byte, topic string) string {
	var head struct {
		EventType string `json:"eventType"`
	}
	if json.Unmarshal(payload, &head) == nil && head.EventType != "" {
		return head.EventType
	}
	return topic
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var errs []error
	if p.writerChunks != nil {
		if e := p.writerChunks.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing chunk writer")
			errs = append(errs, e)
		}
	}
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}
