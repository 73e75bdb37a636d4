package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultKafkaBatch is how many records KafkaSink buffers before writing.
const DefaultKafkaBatch = 500

// kafkaWriteTimeout bounds a single batch write so a slow cluster does not stall the run indefinitely.
const kafkaWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records as JSON to a topic, keyed by participant id so a participant's
// points land on one partition in order.
type KafkaSink struct {
	mu      sync.Mutex
	writer  messageWriter
	topic   string
	batch   int
	pending []kafka.Message
	logger  *zap.Logger
}

// NewKafkaSink creates a sink that writes to topic on brokers. Call Close when done.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("export: kafka brokers and topic must be set")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaSink(writer, topic, DefaultKafkaBatch, logger), nil
}

func newKafkaSink(w messageWriter, topic string, batch int, logger *zap.Logger) *KafkaSink {
	if batch < 1 {
		batch = DefaultKafkaBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{writer: w, topic: topic, batch: batch, logger: logger}
}

// Write buffers rec and writes the batch once it is full.
func (s *KafkaSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(rec.ParticipantID()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "namespace", Value: []byte(rec.Namespace)},
			{Key: "measurement", Value: []byte(rec.Measurement())},
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, msg)
	if len(s.pending) < s.batch {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush writes any buffered records.
func (s *KafkaSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *KafkaSink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 || s.writer == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(writeCtx, s.pending...); err != nil {
		s.logger.Error("export: kafka write failed", zap.String("topic", s.topic), zap.Int("messages", len(s.pending)), zap.Error(err))
		return err
	}
	s.logger.Debug("export: kafka batch written", zap.String("topic", s.topic), zap.Int("messages", len(s.pending)))
	s.pending = s.pending[:0]
	return nil
}

// Close flushes and closes the writer. Safe to call multiple times.
func (s *KafkaSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	err := s.flushLocked(ctx)
	err = errors.Join(err, s.writer.Close())
	s.writer = nil
	return err
}
