// Package sms hands rendered commands to an SMS gateway bridge over MQTT.
//
// Each message is published as JSON to the outbound topic. When an ack
// topic is configured the gateway waits for the bridge's acknowledgement
// carrying the same message id.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ack statuses reported by the bridge.
const (
	StatusQueued   = "queued"
	StatusAccepted = "accepted"
	StatusSent     = "sent"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Ack is the bridge's reply to one outbound message.
type Ack struct {
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Gateway struct {
	client     mqtt.Client
	pub        publisher
	topic      string
	ackTopic   string
	qos        byte
	timeout    time.Duration
	ackTimeout time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]chan Ack
}

func newGateway(pub publisher, cfg config.SMSConfig, logger *zap.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 15 * time.Second
	}
	return &Gateway{
		pub:        pub,
		topic:      cfg.Topic,
		ackTopic:   cfg.AckTopic,
		qos:        cfg.QoS,
		timeout:    cfg.Timeout,
		ackTimeout: cfg.AckTimeout,
		logger:     logger,
		pending:    make(map[uuid.UUID]chan Ack),
	}
}

// NewGateway connects to the MQTT broker. The ack subscription is renewed
// on every reconnect.
func NewGateway(cfg config.SMSConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("sms broker not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	var g *Gateway
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("Connected to SMS gateway broker", zap.String("broker", cfg.Broker))
		if cfg.AckTopic == "" {
			return
		}
		token := c.Subscribe(cfg.AckTopic, cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			g.HandleAck(msg.Payload())
		})
		if token.WaitTimeout(cfg.Timeout) && token.Error() != nil {
			logger.Error("SMS ack subscribe failed",
				zap.String("topic", cfg.AckTopic),
				zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("SMS gateway broker connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	g = newGateway(client, cfg, logger)
	g.client = client

	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		// SetConnectRetry keeps trying in the background.
		logger.Warn("SMS gateway broker not reachable yet", zap.String("broker", cfg.Broker))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to sms broker: %w", err)
	}
	return g, nil
}

// SendSMS publishes msg and classifies the outcome.
func (g *Gateway) SendSMS(ctx context.Context, msg types.SMSMessage) types.Result {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return types.NewResult(types.InternalError, err.Error())
	}

	var acks chan Ack
	if g.ackTopic != "" {
		acks = make(chan Ack, 1)
		g.mu.Lock()
		g.pending[msg.ID] = acks
		g.mu.Unlock()
		defer func() {
			g.mu.Lock()
			delete(g.pending, msg.ID)
			g.mu.Unlock()
		}()
	}

	token := g.pub.Publish(g.topic, g.qos, false, payload)
	if !token.WaitTimeout(g.timeout) {
		return types.NewResult(types.GatewayTimeout, "publish not confirmed")
	}
	if err := token.Error(); err != nil {
		g.logger.Error("SMS publish failed",
			zap.String("device", msg.DeviceID),
			zap.Error(err))
		return types.NewResult(types.GatewayError, err.Error())
	}

	if acks == nil {
		return types.NewResult(types.Queued, "")
	}

	timer := time.NewTimer(g.ackTimeout)
	defer timer.Stop()
	select {
	case ack := <-acks:
		return ackResult(ack)
	case <-timer.C:
		return types.NewResult(types.GatewayTimeout, "no acknowledgement from gateway")
	case <-ctx.Done():
		return types.NewResult(types.GatewayTimeout, ctx.Err().Error())
	}
}

// HandleAck routes an ack payload to the waiting SendSMS call. Unknown or
// malformed acks are logged and dropped.
func (g *Gateway) HandleAck(payload []byte) {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		g.logger.Warn("Malformed SMS ack", zap.Error(err))
		return
	}

	g.mu.Lock()
	ch, ok := g.pending[ack.ID]
	g.mu.Unlock()
	if !ok {
		g.logger.Debug("SMS ack for unknown message", zap.String("id", ack.ID.String()))
		return
	}

	select {
	case ch <- ack:
	default:
	}
}

func ackResult(ack Ack) types.Result {
	switch strings.ToLower(ack.Status) {
	case StatusQueued, StatusAccepted:
		return types.NewResult(types.Queued, ack.Message)
	case StatusSent:
		return types.NewResult(types.Success, ack.Message)
	case StatusRejected:
		return types.NewResult(types.GatewayRejected, ack.Message)
	default:
		return types.NewResult(types.GatewayError, ack.Message)
	}
}

func (g *Gateway) Close() {
	if g.client != nil {
		g.client.Disconnect(250)
	}
}
