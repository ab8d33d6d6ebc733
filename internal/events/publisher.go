// Package events publishes lecture events to Kafka for downstream
// consumers (note archives, analytics, second-screen viewers).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/observability/metrics"
)

// Publisher writes lecture events to three topics: transcript (partial and
// final sentences), translation and notes (status, warnings, summaries).
// It implements sink.Sink; sink calls never block on the broker.
type Publisher struct {
	writerTranscript  *kafka.Writer
	writerTranslation *kafka.Writer
	writerNotes       *kafka.Writer
	principal         string
	topicTranscript   string
	topicTranslation  string
	topicNotes        string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTranscript  string
	TopicTranslation string
	TopicNotes       string
	Principal        string
	Enabled          bool
}

// New creates a publisher. With Kafka disabled or no brokers configured it
// only logs events.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	p := &Publisher{
		principal:        cfg.Principal,
		topicTranscript:  cfg.TopicTranscript,
		topicTranslation: cfg.TopicTranslation,
		topicNotes:       cfg.TopicNotes,
		metrics:          m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerTranscript = p.newWriter(cfg.Brokers, cfg.TopicTranscript, transport)
	p.writerTranslation = p.newWriter(cfg.Brokers, cfg.TopicTranslation, transport)
	p.writerNotes = p.newWriter(cfg.Brokers, cfg.TopicNotes, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicTranslation", cfg.TopicTranslation).
		Str("topicNotes", cfg.TopicNotes).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// newWriter creates an async writer; delivery outcomes are recorded in the
// completion callback.
func (p *Publisher) newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Transport:    transport,
		Completion: func(messages []kafka.Message, err error) {
			for _, msg := range messages {
				eventType := headerValue(msg, "eventType")
				if err != nil {
					log.Error().Err(err).Str("topic", topic).Str("key", string(msg.Key)).Msg("Failed to write to Kafka")
				}
				p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(msg.Time).Seconds())
			}
		},
	}
}

func (p *Publisher) RenderPartial(ev models.TranscriptPartial) {
	_ = p.Publish(context.Background(), p.writerTranscript, p.topicTranscript, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) RenderFinal(ev models.TranscriptFinal) {
	_ = p.Publish(context.Background(), p.writerTranscript, p.topicTranscript, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) RenderTranslation(ev models.Translation) {
	_ = p.Publish(context.Background(), p.writerTranslation, p.topicTranslation, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) Status(ev models.SessionStatus) {
	_ = p.Publish(context.Background(), p.writerNotes, p.topicNotes, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) Warning(ev models.InactivityWarning) {
	_ = p.Publish(context.Background(), p.writerNotes, p.topicNotes, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) Note(ev models.Note) {
	_ = p.Publish(context.Background(), p.writerNotes, p.topicNotes, ev.EventType, ev.SessionID, ev)
}

// Publish marshals event and hands it to writer, keyed by session so a
// session's events stay ordered within a partition. Broker errors surface
// through the writer's completion callback.
func (p *Publisher) Publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

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
		Time:  start,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to queue Kafka message")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}
	return nil
}

// Close flushes and closes all writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"transcript":  p.writerTranscript,
		"translation": p.writerTranslation,
		"notes":       p.writerNotes,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
