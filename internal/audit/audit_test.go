package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

type sliceSink struct {
	recs []types.AuditRecord
	err  error
}

func (s *sliceSink) Record(_ context.Context, rec types.AuditRecord) error {
	s.recs = append(s.recs, rec)
	return s.err
}

type inserterFunc func(ctx context.Context, rec types.AuditRecord) error

func (f inserterFunc) InsertAuditRecord(ctx context.Context, rec types.AuditRecord) error {
	return f(ctx, rec)
}

func sampleRecord() types.AuditRecord {
	return types.AuditRecord{
		ID:         uuid.New(),
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Server:     "acme",
		AccountID:  "fleet",
		DeviceID:   "truck7",
		Command:    "ping",
		Transport:  "socket",
		ResultCode: "OK000",
		Message:    "Successful",
	}
}

func TestKafkaSinkWritesKeyedJSON(t *testing.T) {
	w := &captureWriter{}
	sink := &KafkaSink{w: w}
	rec := sampleRecord()

	require.NoError(t, sink.Record(context.Background(), rec))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "fleet/truck7", string(msg.Key))

	var got types.AuditRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "ping", got.Command)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "acme", string(msg.Headers[0].Value))
	assert.Equal(t, "OK000", string(msg.Headers[1].Value))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSinkWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	sink := &KafkaSink{w: &captureWriter{err: boom}}

	err := sink.Record(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresSink(t *testing.T) {
	var got types.AuditRecord
	sink := NewPostgresSink(inserterFunc(func(_ context.Context, rec types.AuditRecord) error {
		got = rec
		return nil
	}))
	rec := sampleRecord()
	require.NoError(t, sink.Record(context.Background(), rec))
	assert.Equal(t, rec.ID, got.ID)

	boom := errors.New("no table")
	sink = NewPostgresSink(inserterFunc(func(context.Context, types.AuditRecord) error { return boom }))
	assert.ErrorIs(t, sink.Record(context.Background(), rec), boom)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Record(context.Background(), sampleRecord()))
	entries := logs.FilterMessage("Command dispatched").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "truck7", entries[0].ContextMap()["device"])
}

func TestMultiContinuesPastFailures(t *testing.T) {
	errA := errors.New("a failed")
	a := &sliceSink{err: errA}
	b := &sliceSink{}

	err := Multi{a, b}.Record(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, errA)
	assert.Len(t, a.recs, 1)
	assert.Len(t, b.recs, 1)

	assert.NoError(t, Multi{b}.Record(context.Background(), sampleRecord()))
	assert.NoError(t, Multi(nil).Record(context.Background(), sampleRecord()))
}
