package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/api/rest"
	"github.com/KevinKickass/dcscontrol/internal/api/websocket"
	"github.com/KevinKickass/dcscontrol/internal/audit"
	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/dispatch"
	"github.com/KevinKickass/dcscontrol/internal/interfaces"
	"github.com/KevinKickass/dcscontrol/internal/metrics"
	"github.com/KevinKickass/dcscontrol/internal/sms"
	"github.com/KevinKickass/dcscontrol/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type LifecycleManager struct {
	config  *config.Config
	storage *storage.PostgresClient
	modules *dcs.Modules
	logger  *zap.Logger

	directory   *dcs.Directory
	loadResult  *dcs.LoadResult
	metrics     *metrics.Metrics
	hub         *websocket.Hub
	hubCancel   context.CancelFunc
	authService *auth.Service
	gateway     *sms.Gateway
	kafka       *audit.KafkaSink
	engine      *dispatch.Engine

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string
	startedAt    time.Time

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires the control plane around an optional database;
// db may be nil when persistence is disabled.
func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		config:       cfg,
		storage:      db,
		modules:      dcs.NewModules(),
		logger:       logger,
		metrics:      metrics.New(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Modules is the protocol module table. Modules must be registered before
// Start.
func (lm *LifecycleManager) Modules() *dcs.Modules {
	return lm.modules
}

// Start loads the server directory and starts every service.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting DCS control plane")
	lm.setState(StateLoading)

	dir, res, err := LoadDirectory(lm.config.DCS, lm.modules, lm.logger)
	if err != nil {
		lm.setError(err)
		return err
	}
	lm.directory = dir
	lm.loadResult = res
	lm.metrics.ObserveLoad(res, len(dir.List(true)))

	if err := lm.buildServices(); err != nil {
		lm.setError(err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.hub.Run(ctx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()
	lm.setState(StateRunning)

	lm.hub.Broadcast("", websocket.NewMessage(websocket.MessageTypeConfigLoaded, websocket.ConfigLoadedData{
		Profiles:  dir.Len(),
		Conflicts: len(res.Conflicts),
		Files:     res.Files,
	}))

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("profiles", dir.Len()),
		zap.Bool("auth_enabled", lm.authService != nil),
		zap.Bool("sms_enabled", lm.gateway != nil))

	return nil
}

func (lm *LifecycleManager) buildServices() error {
	if lm.config.Auth.Enabled {
		if lm.storage == nil {
			return errors.New("authentication requires the database")
		}
		lm.authService = auth.NewService(lm.storage, lm.config.Auth, lm.logger)
	}

	if lm.authService != nil {
		lm.hub = websocket.NewHub(lm.logger, lm.authService)
	} else {
		lm.hub = websocket.NewHub(lm.logger, nil)
	}

	deps := dispatch.Deps{
		Notifier: lm.hub,
		Metrics:  lm.metrics,
	}
	if lm.storage != nil {
		deps.Store = lm.storage
	}

	if sinks := lm.auditSinks(); len(sinks) > 0 {
		deps.Audit = sinks
	}

	if lm.config.SMS.Enabled {
		gw, err := sms.NewGateway(lm.config.SMS, lm.logger)
		if err != nil {
			return fmt.Errorf("failed to start sms gateway: %w", err)
		}
		lm.gateway = gw
		deps.SMS = gw
	}

	lm.engine = dispatch.NewEngine(lm.directory, deps, dispatch.Options{
		DefaultHost: lm.config.Dispatch.DefaultHost,
		Timeout:     lm.config.Dispatch.Timeout,
	}, lm.logger)

	return nil
}

func (lm *LifecycleManager) auditSinks() audit.Multi {
	var sinks audit.Multi
	if lm.config.Audit.Postgres && lm.storage != nil {
		sinks = append(sinks, audit.NewPostgresSink(lm.storage))
	}
	if k := lm.config.Audit.Kafka; k.Enabled {
		lm.kafka = audit.NewKafkaSink(k.Brokers, k.Topic, k.BatchTimeout)
		sinks = append(sinks, lm.kafka)
		lm.logger.Info("Kafka audit stream enabled",
			zap.Strings("brokers", k.Brokers),
			zap.String("topic", k.Topic))
	}
	if lm.config.Audit.Log {
		sinks = append(sinks, audit.NewLogSink(lm.logger))
	}
	return sinks
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 4)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.health.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	case err = <-errChan:
	}

	// in-flight dispatches have drained with the servers
	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	if lm.gateway != nil {
		lm.gateway.Close()
	}
	if lm.kafka != nil {
		if kerr := lm.kafka.Close(); kerr != nil {
			lm.logger.Warn("Failed to flush kafka audit stream", zap.Error(kerr))
		}
	}

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	lm.health = health.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	// one health service per loaded profile, plus the overall ""
	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, p := range lm.directory.List(false) {
		status := healthpb.HealthCheckResponse_SERVING
		if !lm.directory.IsInstalled(p) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		lm.health.SetServingStatus(p.Name(), status)
	}

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.Int("health_services", lm.directory.Len()+1))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	deps := rest.Deps{
		Engine:  lm.engine,
		Hub:     lm.hub,
		Metrics: lm.metrics.Handler(),
	}
	if lm.storage != nil {
		deps.Devices = lm.storage
	}
	if lm.authService != nil {
		deps.Auth = lm.authService
	}
	lm.restServer = rest.NewServer(lm.config, lm, deps, lm.logger)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.stateMu.Unlock()
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State: lm.currentState.String(),
		Error: lm.lastError,
	}
	if !lm.startedAt.IsZero() {
		status.StartedAt = lm.startedAt.Unix()
	}
	lm.stateMu.RUnlock()

	if lm.directory != nil {
		status.Profiles = lm.directory.Len()
		status.Installed = len(lm.directory.List(true))
	}
	if lm.loadResult != nil {
		status.ConfigFiles = lm.loadResult.Files
		status.PortConflicts = lm.loadResult.Conflicts
	}
	if lm.hub != nil {
		status.LiveClients = lm.hub.ClientCount()
	}
	return status
}

func (lm *LifecycleManager) broadcastStatus() {
	if lm.hub == nil {
		return
	}
	lm.hub.Broadcast("", websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Directory() *dcs.Directory {
	return lm.directory
}

// Engine returns the dispatch engine; nil before Start.
func (lm *LifecycleManager) Engine() *dispatch.Engine {
	return lm.engine
}

func (lm *LifecycleManager) Metrics() *metrics.Metrics {
	return lm.metrics
}
