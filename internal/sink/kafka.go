package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
)

// windowEvent is the wire payload for a full transcript window replacement.
type windowEvent struct {
	SessionID  string                  `json:"sessionId"`
	Principal  string                  `json:"principal"`
	ReplacedAt time.Time               `json:"replacedAt"`
	Blocks     []models.CommittedBlock `json:"blocks"`
}

// Kafka publishes full transcript windows to a single topic. Each flush
// replaces the previous window for the session, keyed by session ID so
// consumers can use log compaction to keep only the latest state.
type Kafka struct {
	writer    *kafka.Writer
	topic     string
	principal string
	enabled   bool
}

// NewKafka creates a transcript window publisher. When disabled or no
// brokers are configured it runs in log-only mode.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Kafka{
			topic:     cfg.Topic,
			principal: cfg.Principal,
			enabled:   false,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
		},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka sink initialized")

	return &Kafka{
		writer:    writer,
		topic:     cfg.Topic,
		principal: cfg.Principal,
		enabled:   true,
	}
}

// Replace publishes the current committed window for the session.
func (k *Kafka) Replace(ctx context.Context, sessionID string, blocks []models.CommittedBlock) error {
	event := windowEvent{
		SessionID:  sessionID,
		Principal:  k.principal,
		ReplacedAt: time.Now().UTC(),
		Blocks:     blocks,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", k.topic).Msg("Failed to marshal window event")
		return err
	}

	log.Debug().
		Str("principal", k.principal).
		Str("topic", k.topic).
		Str("sessionId", sessionID).
		Int("blocks", len(blocks)).
		Msg("Publishing transcript window")

	if !k.enabled || k.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(k.topic)},
			{Key: "principal", Value: []byte(k.principal)},
		},
	}

	if err := writeWithRetry(ctx, k.writer, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", k.topic).
			Str("sessionId", sessionID).
			Msg("Failed to write to Kafka")
		return err
	}
	return nil
}

// writeWithRetry retries once on failure. Windows are full replacements
// so a dropped message is recovered by the next flush anyway.
func writeWithRetry(ctx context.Context, w *kafka.Writer, msg kafka.Message) error {
	err := w.WriteMessages(ctx, msg)
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(250 * time.Millisecond):
	}
	return w.WriteMessages(ctx, msg)
}

// Close closes the Kafka writer.
func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
