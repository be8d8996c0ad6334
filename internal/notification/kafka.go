package notification

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/model"
)

const kafkaWriteTimeout = 3 * time.Second

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous writer for the turn-event topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaPublisher publishes turn events, keyed by machine so one machine's events stay ordered.
type KafkaPublisher struct {
	writer MessageWriter
	logger *logrus.Logger
}

// NewKafkaPublisher wraps writer.
func NewKafkaPublisher(writer MessageWriter, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Notify writes event as JSON.
func (p *KafkaPublisher) Notify(ctx context.Context, event model.TurnEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal turn event")
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.MachineID, 10)),
		Value: b,
		Time:  event.At,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to publish turn event %s", event.EntryID)
	}
	p.logger.WithField("entry_id", event.EntryID).Debug("turn event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
