package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxAuditLimit = 500

func (s *Server) requireDevices(c *gin.Context) bool {
	if s.deps.Devices == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("DEVICE_503", "Device store not configured", nil))
		return false
	}
	return true
}

// GET /api/v1/devices/:account/:device/audit?limit=N
func (s *Server) deviceAudit(c *gin.Context) {
	if !s.requireDevices(c) {
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUDIT_400", "Invalid limit", v))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	account, device := c.Param("account"), c.Param("device")
	records, err := s.deps.Devices.ListAuditRecords(c.Request.Context(), account, device, limit)
	if err != nil {
		s.logger.Error("Failed to list audit records",
			zap.String("account", account),
			zap.String("device", device),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("AUDIT_500", "Failed to list audit records", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// POST /api/v1/devices/:account/:device/ping-count/reset
func (s *Server) resetPingCount(c *gin.Context) {
	if !s.requireDevices(c) {
		return
	}

	account, device := c.Param("account"), c.Param("device")
	if err := s.deps.Devices.ResetPingCount(c.Request.Context(), account, device); err != nil {
		if errors.Is(err, types.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "Device not found", account+"/"+device))
			return
		}
		s.logger.Error("Failed to reset ping count", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("DEVICE_500", "Failed to reset ping count", nil))
		return
	}

	s.logger.Info("Ping count reset",
		zap.String("account", account),
		zap.String("device", device))
	c.JSON(http.StatusOK, gin.H{"message": "ping count reset"})
}
