package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/api/websocket"
	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/dispatch"
	"github.com/KevinKickass/dcscontrol/internal/interfaces"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dispatcher renders and sends commands; *dispatch.Engine implements it.
type Dispatcher interface {
	Render(server, command string, args []string, dev *types.Device) (string, types.Result)
	Dispatch(ctx context.Context, req dispatch.Request) types.Result
}

// DeviceStore resolves devices for dispatch and lookup requests and serves
// their command history.
type DeviceStore interface {
	dcs.DeviceFinder
	DeviceByID(ctx context.Context, accountID, deviceID string) (*types.Device, error)
	ListAuditRecords(ctx context.Context, accountID, deviceID string, limit int) ([]types.AuditRecord, error)
	ResetPingCount(ctx context.Context, accountID, deviceID string) error
}

// Deps are the collaborators of the HTTP API. Devices, Auth and Metrics
// may be nil; a nil Auth serves every request as the anonymous admin.
type Deps struct {
	Engine  Dispatcher
	Devices DeviceStore
	Auth    *auth.Service
	Hub     *websocket.Hub
	Metrics http.Handler
}

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	deps   Deps
	logger *zap.Logger
	server *http.Server
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		deps:   deps,
		logger: logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) authenticate() gin.HandlerFunc {
	if s.deps.Auth == nil {
		return auth.AnonymousMiddleware()
	}
	return s.deps.Auth.Middleware()
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes
	s.router.GET("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		if s.deps.Auth != nil {
			authPublic := v1.Group("/auth")
			{
				authPublic.POST("/login", s.login)
				authPublic.POST("/refresh", s.refreshToken)
			}

			authProtected := v1.Group("/auth")
			authProtected.Use(s.authenticate())
			{
				authProtected.POST("/logout", s.logout)
				authProtected.GET("/me", s.getCurrentPrincipal)
			}

			// ==================== API KEYS (ADMIN ONLY) ====================
			keys := v1.Group("/api-keys")
			keys.Use(s.authenticate())
			keys.Use(auth.RequireAccess(auth.ACLAdmin, types.AccessAll))
			{
				keys.POST("", s.createAPIKey)
				keys.GET("", s.listAPIKeys)
				keys.DELETE("/:id", s.deleteAPIKey)
			}

			operators := v1.Group("/operators")
			operators.Use(s.authenticate())
			operators.Use(auth.RequireAccess(auth.ACLAdmin, types.AccessAll))
			{
				operators.POST("", s.createOperator)
			}
		}

		// ==================== SERVERS ====================
		servers := v1.Group("/servers")
		servers.Use(s.authenticate())
		{
			servers.GET("", s.listServers)
			servers.GET("/:name", s.getServer)
			servers.GET("/:name/ports", s.getServerPorts)
			servers.GET("/:name/commands", s.listServerCommands)
			servers.POST("/:name/commands/:command/render", s.renderCommand)
		}

		// ==================== DEVICES & DISPATCH ====================
		v1.GET("/devices/lookup", s.authenticate(), s.lookupDevice)
		devices := v1.Group("/devices/:account/:device")
		devices.Use(s.authenticate())
		{
			devices.GET("/audit", auth.RequireAccess(auth.ACLDevices, types.AccessRead), s.deviceAudit)
			devices.POST("/ping-count/reset", auth.RequireAccess(auth.ACLDevices, types.AccessWrite), s.resetPingCount)
		}
		v1.POST("/dispatch", s.authenticate(), s.dispatchCommand)

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authenticate())
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", auth.RequireAccess(auth.ACLAdmin, types.AccessAll), s.shutdown)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		if s.deps.Hub != nil {
			ws := v1.Group("/ws")
			{
				ws.GET("/live", s.wsLiveConnection)
				ws.GET("/status", s.authenticate(), s.wsStatus)
			}
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.deps.Hub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.deps.Hub.ClientCount(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	status := "ok"
	if s.lm != nil {
		status = s.lm.GetCurrentStatus().State
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}
