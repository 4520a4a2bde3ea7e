package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-feature-etl/internal/config"
	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

const (
	headerRunID       = "run_id"
	headerTick        = "tick"
	headerProcessedAt = "processed_at"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces feature records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes one message per feature record in a single
// WriteMessages call. Records are keyed by station and timestamp so a
// station's history stays on one partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.FeatureBatch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Records))
	for i := range batch.Records {
		msg, err := serializeToMessage(batch, batch.Records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d feature records: %w", len(msgs), err)
	}
	w.logger.Debug("published feature batch", "run_id", batch.RunID, "records", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a FeatureRecord into a Kafka message.
func serializeToMessage(batch domain.FeatureBatch, rec domain.FeatureRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature record %s: %w", rec.Key(), err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Key().String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerRunID, Value: []byte(batch.RunID)},
			{Key: headerTick, Value: []byte(domain.CanonicalTimestamp(batch.Tick))},
			{Key: headerProcessedAt, Value: []byte(batch.ProcessedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}

// DecodeMessage parses a message produced by Writer back into its record
// and run id.
func DecodeMessage(msg kafkago.Message) (domain.FeatureRecord, string, error) {
	var rec domain.FeatureRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return domain.FeatureRecord{}, "", fmt.Errorf("decode feature record: %w", err)
	}
	var runID string
	for _, h := range msg.Headers {
		if h.Key == headerRunID {
			runID = string(h.Value)
		}
	}
	return rec, runID, nil
}
