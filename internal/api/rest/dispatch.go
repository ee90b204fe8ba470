package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/dispatch"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DispatchRequest struct {
	Server  string   `json:"server" binding:"required"`
	Account string   `json:"account"`
	Device  string   `json:"device"`
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
	CmdType string   `json:"cmd_type"`
}

type RenderRequest struct {
	Account string   `json:"account"`
	Device  string   `json:"device"`
	Args    []string `json:"args"`
}

// resultStatus maps a dispatch outcome to an HTTP status.
func resultStatus(code types.ResultCode) int {
	switch code {
	case types.Success:
		return http.StatusOK
	case types.Queued:
		return http.StatusAccepted
	case types.NotAuthorized:
		return http.StatusForbidden
	case types.InvalidServer, types.InvalidCommand, types.InvalidAccount, types.InvalidDevice:
		return http.StatusNotFound
	case types.InvalidArg, types.InvalidType, types.InvalidProtocol, types.InvalidSMS, types.InvalidPacket:
		return http.StatusBadRequest
	case types.OverLimit:
		return http.StatusTooManyRequests
	case types.GatewayTimeout:
		return http.StatusGatewayTimeout
	case types.InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeResult(c *gin.Context, res types.Result) {
	c.JSON(resultStatus(res.Code), res.MarshalFields())
}

// device resolves the addressed device. Without a device store the ids are
// passed through as a bare device.
func (s *Server) device(c *gin.Context, accountID, deviceID string) (*types.Device, *types.Result) {
	if accountID == "" && deviceID == "" {
		return nil, nil
	}
	if s.deps.Devices == nil {
		return &types.Device{Account: types.Account{ID: accountID}, ID: deviceID}, nil
	}
	dev, err := s.deps.Devices.DeviceByID(c.Request.Context(), accountID, deviceID)
	if err != nil {
		if errors.Is(err, types.ErrDeviceNotFound) {
			res := types.NewResult(types.InvalidDevice, "device not found: "+accountID+"/"+deviceID)
			return nil, &res
		}
		s.logger.Error("Device lookup failed",
			zap.String("account", accountID),
			zap.String("device", deviceID),
			zap.Error(err))
		res := types.NewResult(types.InternalError, "device lookup failed")
		return nil, &res
	}
	return dev, nil
}

// authorized checks the command ACL against the caller's grants. Unknown
// servers and commands pass through so the engine reports them.
func (s *Server) authorized(c *gin.Context, server, command string) bool {
	p, ok := s.directory().Get(server)
	if !ok {
		return true
	}
	cmd, ok := p.Commands.Get(command)
	if !ok {
		return true
	}
	pr := auth.PrincipalFrom(c)
	return pr != nil && pr.Grants.Allows(cmd.ACL, cmd.Access)
}

// POST /api/v1/dispatch
func (s *Server) dispatchCommand(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DISPATCH_400", "Invalid request body", err.Error()))
		return
	}

	pr := auth.PrincipalFrom(c)
	if !s.authorized(c, req.Server, req.Command) {
		s.logger.Warn("Command dispatch denied",
			zap.String("server", req.Server),
			zap.String("command", req.Command),
			zap.String("subject", pr.Subject))
		writeResult(c, types.NewResult(types.NotAuthorized, ""))
		return
	}

	dev, failed := s.device(c, req.Account, req.Device)
	if failed != nil {
		writeResult(c, *failed)
		return
	}

	res := s.deps.Engine.Dispatch(c.Request.Context(), dispatch.Request{
		Server:      req.Server,
		Device:      dev,
		Command:     req.Command,
		Args:        req.Args,
		CmdType:     req.CmdType,
		RequestedBy: pr.Subject,
	})
	writeResult(c, res)
}

// POST /api/v1/servers/:name/commands/:command/render
func (s *Server) renderCommand(c *gin.Context) {
	var req RenderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("RENDER_400", "Invalid request body", err.Error()))
			return
		}
	}

	server, command := c.Param("name"), c.Param("command")
	if !s.authorized(c, server, command) {
		writeResult(c, types.NewResult(types.NotAuthorized, ""))
		return
	}

	dev, failed := s.device(c, req.Account, req.Device)
	if failed != nil {
		writeResult(c, *failed)
		return
	}

	_, res := s.deps.Engine.Render(server, command, req.Args, dev)
	writeResult(c, res)
}

// GET /api/v1/devices/lookup?id=<raw>
func (s *Server) lookupDevice(c *gin.Context) {
	raw := c.Query("id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DEVICE_400", "Missing id parameter", nil))
		return
	}
	if s.deps.Devices == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("DEVICE_503", "Device store not configured", nil))
		return
	}

	p, dev, err := s.directory().FindDevice(c.Request.Context(), s.deps.Devices, raw)
	if err != nil {
		if errors.Is(err, types.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "Device not found", raw))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("DEVICE_500", "Device lookup failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server": p.Name(),
		"device": dev,
	})
}
