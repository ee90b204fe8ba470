// Package audit fans successful command dispatches out to the configured
// record sinks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sink receives one record per successful dispatch.
type Sink interface {
	Record(ctx context.Context, rec types.AuditRecord) error
}

// Multi records to every sink and joins their errors. A failing sink does
// not stop the others.
type Multi []Sink

func (m Multi) Record(ctx context.Context, rec types.AuditRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordInserter is the storage method backing PostgresSink.
type RecordInserter interface {
	InsertAuditRecord(ctx context.Context, rec types.AuditRecord) error
}

type PostgresSink struct {
	db RecordInserter
}

func NewPostgresSink(db RecordInserter) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, rec types.AuditRecord) error {
	if err := s.db.InsertAuditRecord(ctx, rec); err != nil {
		return fmt.Errorf("postgres audit: %w", err)
	}
	return nil
}

// LogSink writes records to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, rec types.AuditRecord) error {
	s.logger.Info("Command dispatched",
		zap.String("id", rec.ID.String()),
		zap.String("server", rec.Server),
		zap.String("account", rec.AccountID),
		zap.String("device", rec.DeviceID),
		zap.String("command", rec.Command),
		zap.String("transport", rec.Transport),
		zap.String("result", rec.ResultCode),
		zap.String("requested_by", rec.RequestedBy))
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams records as JSON, keyed by account/device so records of
// one device stay ordered within a partition.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string, topic string, batchTimeout time.Duration) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Record(ctx context.Context, rec types.AuditRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.AccountID + "/" + rec.DeviceID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "server", Value: []byte(rec.Server)},
			{Key: "result", Value: []byte(rec.ResultCode)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka audit: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}
