package sms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	done    chan struct{}
	err     error
	pending bool
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic    string
	qos      byte
	payloads [][]byte
	token    *fakeToken
	onPub    func(payload []byte)
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	b := payload.([]byte)
	p.topic = topic
	p.qos = qos
	p.payloads = append(p.payloads, b)
	if p.onPub != nil {
		p.onPub(b)
	}
	if p.token != nil {
		return p.token
	}
	return newToken(nil)
}

func testConfig(ackTopic string) config.SMSConfig {
	return config.SMSConfig{
		Topic:      "dcs/sms/outbound",
		AckTopic:   ackTopic,
		QoS:        1,
		Timeout:    time.Second,
		AckTimeout: 200 * time.Millisecond,
	}
}

func sampleMessage() types.SMSMessage {
	return types.SMSMessage{
		ID:        uuid.New(),
		Server:    "acme",
		AccountID: "fleet",
		DeviceID:  "truck7",
		Phone:     "+15550100",
		Command:   "locate",
		Text:      "LOC?",
	}
}

func TestSendSMSWithoutAckIsQueued(t *testing.T) {
	pub := &fakePublisher{}
	g := newGateway(pub, testConfig(""), zap.NewNop())

	msg := sampleMessage()
	res := g.SendSMS(context.Background(), msg)
	assert.Equal(t, types.Queued, res.Code)
	assert.True(t, res.IsSuccess())

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "dcs/sms/outbound", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var sent types.SMSMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &sent))
	assert.Equal(t, msg.ID, sent.ID)
	assert.Equal(t, "+15550100", sent.Phone)
	assert.Equal(t, "LOC?", sent.Text)
}

func TestSendSMSAssignsID(t *testing.T) {
	pub := &fakePublisher{}
	g := newGateway(pub, testConfig(""), zap.NewNop())

	msg := sampleMessage()
	msg.ID = uuid.Nil
	g.SendSMS(context.Background(), msg)

	var sent types.SMSMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &sent))
	assert.NotEqual(t, uuid.Nil, sent.ID)
}

func TestSendSMSPublishFailures(t *testing.T) {
	pub := &fakePublisher{token: newToken(errors.New("not connected"))}
	g := newGateway(pub, testConfig(""), zap.NewNop())
	res := g.SendSMS(context.Background(), sampleMessage())
	assert.Equal(t, types.GatewayError, res.Code)
	assert.Equal(t, "not connected", res.Message)

	slow := newToken(nil)
	slow.pending = true
	g = newGateway(&fakePublisher{token: slow}, testConfig(""), zap.NewNop())
	res = g.SendSMS(context.Background(), sampleMessage())
	assert.Equal(t, types.GatewayTimeout, res.Code)
}

func TestSendSMSAckStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   types.ResultCode
	}{
		{StatusQueued, types.Queued},
		{StatusAccepted, types.Queued},
		{StatusSent, types.Success},
		{"REJECTED", types.GatewayRejected},
		{StatusFailed, types.GatewayError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			pub := &fakePublisher{}
			g := newGateway(pub, testConfig("dcs/sms/ack"), zap.NewNop())
			pub.onPub = func(payload []byte) {
				var m types.SMSMessage
				require.NoError(t, json.Unmarshal(payload, &m))
				ack, _ := json.Marshal(Ack{ID: m.ID, Status: tt.status, Message: "from bridge"})
				g.HandleAck(ack)
			}

			res := g.SendSMS(context.Background(), sampleMessage())
			assert.Equal(t, tt.want, res.Code)
			assert.Equal(t, "from bridge", res.Message)
		})
	}
}

func TestSendSMSAckTimeout(t *testing.T) {
	g := newGateway(&fakePublisher{}, testConfig("dcs/sms/ack"), zap.NewNop())
	res := g.SendSMS(context.Background(), sampleMessage())
	assert.Equal(t, types.GatewayTimeout, res.Code)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.pending)
}

func TestSendSMSContextCancelled(t *testing.T) {
	cfg := testConfig("dcs/sms/ack")
	cfg.AckTimeout = time.Minute
	g := newGateway(&fakePublisher{}, cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := g.SendSMS(ctx, sampleMessage())
	assert.Equal(t, types.GatewayTimeout, res.Code)
}

func TestHandleAckIgnoresUnknownAndMalformed(t *testing.T) {
	g := newGateway(&fakePublisher{}, testConfig("dcs/sms/ack"), zap.NewNop())
	assert.NotPanics(t, func() {
		g.HandleAck([]byte("{not json"))
		ack, _ := json.Marshal(Ack{ID: uuid.New(), Status: StatusSent})
		g.HandleAck(ack)
	})
}
