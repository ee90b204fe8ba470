package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/transport"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport names reported in results, audit records and metrics.
const (
	TransportSocket = "socket"
	TransportSMS    = "sms"
)

// Request formats written to a DCS command port, selected per profile with
// the "commandFormat" property.
const (
	FormatText       = "text"
	FormatProperties = "properties"
)

// DeviceStore persists the per-device ping counter.
type DeviceStore interface {
	IncrementPingCount(ctx context.Context, dev *types.Device) error
}

// AuditSink receives one record per successful dispatch.
type AuditSink interface {
	Record(ctx context.Context, rec types.AuditRecord) error
}

// SMSSender hands a rendered command to the SMS gateway.
type SMSSender interface {
	SendSMS(ctx context.Context, msg types.SMSMessage) types.Result
}

// Notifier publishes completed dispatches to live subscribers.
type Notifier interface {
	PublishDispatch(ev types.DispatchEvent)
}

// Recorder records dispatch metrics.
type Recorder interface {
	ObserveDispatch(server, command, transport string, code types.ResultCode, elapsed time.Duration)
}

// Deps are the optional collaborators of an Engine. Nil members are
// skipped.
type Deps struct {
	Store    DeviceStore
	Audit    AuditSink
	SMS      SMSSender
	Notifier Notifier
	Metrics  Recorder
}

// Options are process-wide dispatch defaults; profiles override them with
// the commandHost and commandTimeout properties.
type Options struct {
	DefaultHost string
	Timeout     time.Duration
}

// Request describes one command dispatch.
type Request struct {
	Server      string
	Device      *types.Device
	Command     string
	Args        []string
	CmdType     string
	RequestedBy string
}

type state int

const (
	stateResolving state = iota
	stateRendering
	stateSMS
	stateSocket
	stateClassifying
	stateSideEffects
	stateDone
)

func (s state) String() string {
	switch s {
	case stateResolving:
		return "RESOLVING"
	case stateRendering:
		return "RENDERING"
	case stateSMS:
		return "SMS"
	case stateSocket:
		return "SOCKET"
	case stateClassifying:
		return "CLASSIFYING"
	case stateSideEffects:
		return "SIDE_EFFECTS"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Engine resolves, renders and sends commands. It holds no per-dispatch
// state and is safe for concurrent use.
type Engine struct {
	dir    *dcs.Directory
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func NewEngine(dir *dcs.Directory, deps Deps, opts Options, logger *zap.Logger) *Engine {
	if opts.DefaultHost == "" {
		opts.DefaultHost = "localhost"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = transport.DefaultTimeout
	}
	return &Engine{dir: dir, deps: deps, opts: opts, logger: logger}
}

// Render resolves server and command and returns the literal command string
// without sending it.
func (e *Engine) Render(server, command string, args []string, dev *types.Device) (string, types.Result) {
	p, cmd, res := e.resolve(server, command)
	if p == nil || cmd == nil {
		return "", res
	}
	s := Render(cmd, args, dev)
	r := types.NewResult(types.Success, "")
	r.Command = s
	return s, r
}

// Dispatch sends one command and classifies the outcome. It never panics;
// every failure is reported as a Result.
func (e *Engine) Dispatch(ctx context.Context, req Request) (res types.Result) {
	start := time.Now()
	st := stateResolving

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Dispatch panic recovered",
				zap.String("server", req.Server),
				zap.String("command", req.Command),
				zap.String("state", st.String()),
				zap.Any("panic", r))
			res = types.NewResult(types.InternalError, fmt.Sprint(r))
		}
		elapsed := time.Since(start)
		if e.deps.Metrics != nil {
			e.deps.Metrics.ObserveDispatch(req.Server, req.Command, res.Transport, res.Code, elapsed)
		}
		if e.deps.Notifier != nil {
			e.deps.Notifier.PublishDispatch(types.DispatchEvent{
				ID:         uuid.New(),
				Timestamp:  start.UTC(),
				Server:     req.Server,
				AccountID:  req.Device.AccountID(),
				DeviceID:   deviceID(req.Device),
				Command:    req.Command,
				Transport:  res.Transport,
				ResultCode: res.Code.Code(),
				Success:    res.IsSuccess(),
				Message:    res.Message,
				Duration:   elapsed,
			})
		}
	}()

	dev := req.Device
	if dev.ExceedsMaxPingCount() {
		e.logger.Info("Device over ping limit",
			zap.String("device", dev.ID),
			zap.Int("total", dev.TotalPingCount),
			zap.Int("max", dev.MaxPingCount))
		return types.NewResult(types.OverLimit, "")
	}

	p, cmd, res := e.resolve(req.Server, req.Command)
	if p == nil || cmd == nil {
		return res
	}

	st = stateRendering
	rendered := Render(cmd, req.Args, dev)
	handler := cmd.Handler
	if handler == "" {
		handler = p.Module()
	}
	encoded, err := e.dir.Modules().Encoder(handler).Encode(rendered)
	if err != nil {
		return types.NewResult(types.InvalidArg, fmt.Sprintf("encode command: %v", err))
	}

	if port := p.ResolvedCommandPort(); port <= 0 {
		if !cmd.Protocol.IsSMS() {
			return types.NewResult(types.InvalidProtocol, "command port not supported")
		}
		st = stateSMS
		res = e.sendSMS(ctx, p, cmd, dev, encoded)
	} else {
		st = stateSocket
		res = e.sendSocket(ctx, p, cmd, req, encoded, port)
	}
	res.Command = rendered

	st = stateClassifying
	e.logger.Debug("Command dispatched",
		zap.String("server", p.Name()),
		zap.String("command", cmd.Name),
		zap.String("transport", res.Transport),
		zap.String("result", res.Code.Code()),
		zap.String("message", res.Message))

	if res.IsSuccess() {
		st = stateSideEffects
		e.recordSuccess(ctx, p, cmd, req, res)
	}
	st = stateDone
	return res
}

func (e *Engine) resolve(server, command string) (*dcs.ServerProfile, *dcs.CommandDefinition, types.Result) {
	p := e.dir.Lookup(server, true)
	if p == nil {
		return nil, nil, types.NewResult(types.InvalidServer, fmt.Sprintf("unknown server %q", server))
	}
	cmd, ok := p.Commands.Get(command)
	if !ok {
		return p, nil, types.NewResult(types.InvalidCommand, fmt.Sprintf("unknown command %q", command))
	}
	if !cmd.Enabled {
		return p, nil, types.NewResult(types.InvalidCommand, fmt.Sprintf("command %q is disabled", command))
	}
	return p, cmd, types.Result{}
}

func (e *Engine) sendSMS(ctx context.Context, p *dcs.ServerProfile, cmd *dcs.CommandDefinition, dev *types.Device, text string) types.Result {
	res := e.smsResult(ctx, p, cmd, dev, text)
	res.Transport = TransportSMS
	return res
}

func (e *Engine) smsResult(ctx context.Context, p *dcs.ServerProfile, cmd *dcs.CommandDefinition, dev *types.Device, text string) types.Result {
	switch {
	case dev == nil:
		return types.NewResult(types.InvalidDevice, "device required for sms dispatch")
	case dev.Account.ID == "":
		return types.NewResult(types.InvalidAccount, "")
	case !dev.Account.SMSEnabled:
		return types.NewResult(types.NotAuthorized, "sms not enabled for account")
	case strings.TrimSpace(dev.SimPhone) == "":
		return types.NewResult(types.InvalidSMS, "device has no sim phone number")
	case e.deps.SMS == nil:
		return types.NewResult(types.GatewayError, "sms gateway not configured")
	}

	return e.deps.SMS.SendSMS(ctx, types.SMSMessage{
		ID:        uuid.New(),
		Server:    p.Name(),
		AccountID: dev.Account.ID,
		DeviceID:  dev.ID,
		Phone:     dev.SimPhone,
		Command:   cmd.Name,
		Text:      text,
		Handler:   cmd.Handler,
		Queue:     cmd.AllowQueue,
	})
}

func (e *Engine) sendSocket(ctx context.Context, p *dcs.ServerProfile, cmd *dcs.CommandDefinition, req Request, encoded string, port int) types.Result {
	c := p.Props()
	host := p.ResolvedCommandHost(e.opts.DefaultHost)
	timeout := durationProp(c.String("commandTimeout", ""), e.opts.Timeout)

	line := encoded
	if strings.EqualFold(c.String("commandFormat", FormatText), FormatProperties) {
		line = requestProperties(p, cmd, req, encoded).Encode()
	}

	client := transport.NewClient(host, port, timeout)
	resp, err := client.Exchange(ctx, line)
	if err != nil {
		code := types.TransmitFail
		if transport.IsUnknownHost(err) {
			code = types.UnknownHost
		}
		e.logger.Warn("Command transmit failed",
			zap.String("server", p.Name()),
			zap.String("address", client.Address()),
			zap.Error(err))
		res := types.NewResult(code, err.Error())
		res.Transport = TransportSocket
		return res
	}

	reply := transport.ParseProperties(resp)
	res := types.NewResult(types.ParseResultCode(reply.Get("result")), reply.Get("message"))
	res.Transport = TransportSocket
	return res
}

// requestProperties builds the flat key/value request line.
func requestProperties(p *dcs.ServerProfile, cmd *dcs.CommandDefinition, req Request, encoded string) *transport.Properties {
	dev := req.Device
	props := transport.NewProperties().
		Set("account", dev.AccountID()).
		Set("device", deviceID(dev)).
		Set("uniqueID", uniqueID(dev)).
		Set("cmdType", req.CmdType).
		Set("cmdName", cmd.Name)
	for i, a := range req.Args {
		props.Set("arg"+strconv.Itoa(i), a)
	}
	props.Set("cmdStr", encoded).
		Set("protocol", string(cmd.Protocol)).
		Set("server", p.Name())
	if cmd.ExpectAck {
		props.Set("expectAck", "true").Set("ackCode", strconv.Itoa(cmd.AckCode))
	}
	if cmd.MaxRouteAge > 0 {
		props.Set("maxRouteAge", strconv.FormatInt(int64(cmd.MaxRouteAge/time.Second), 10))
	}
	if cmd.AllowQueue {
		props.Set("allowQueue", "true")
	}
	return props
}

// recordSuccess performs the post-dispatch side effects. Failures are
// logged only.
func (e *Engine) recordSuccess(ctx context.Context, p *dcs.ServerProfile, cmd *dcs.CommandDefinition, req Request, res types.Result) {
	dev := req.Device
	if dev != nil && e.deps.Store != nil {
		if err := e.deps.Store.IncrementPingCount(ctx, dev); err != nil {
			e.logger.Warn("Failed to increment ping count", zap.String("device", dev.ID), zap.Error(err))
		}
	}

	if e.deps.Audit != nil {
		rec := types.AuditRecord{
			ID:            uuid.New(),
			Timestamp:     time.Now().UTC(),
			Server:        p.Name(),
			AccountID:     dev.AccountID(),
			DeviceID:      deviceID(dev),
			UniqueID:      uniqueID(dev),
			Command:       cmd.Name,
			CommandString: res.Command,
			Args:          req.Args,
			Transport:     res.Transport,
			ResultCode:    res.Code.Code(),
			Message:       res.Message,
			StatusCode:    cmd.AuditCode,
			RequestedBy:   req.RequestedBy,
		}
		if err := e.deps.Audit.Record(ctx, rec); err != nil {
			e.logger.Warn("Failed to write audit record", zap.String("command", cmd.Name), zap.Error(err))
		}
	}
}

func deviceID(d *types.Device) string {
	if d == nil {
		return ""
	}
	return d.ID
}

func uniqueID(d *types.Device) string {
	if d == nil {
		return ""
	}
	return d.UniqueID
}

// durationProp parses "5s" style durations or a bare number of seconds.
func durationProp(s string, dft time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return dft
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return dft
		}
		return time.Duration(n * float64(time.Second))
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return dft
}
