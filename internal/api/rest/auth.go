package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/dcscontrol/internal/auth"
	"github.com/KevinKickass/dcscontrol/internal/storage"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type CreateAPIKeyRequest struct {
	Name string            `json:"name" binding:"required"`
	ACL  map[string]string `json:"acl" binding:"required"`
}

type CreateAPIKeyResponse struct {
	Key  string            `json:"key"` // only returned once
	ID   uuid.UUID         `json:"id"`
	Name string            `json:"name"`
	ACL  map[string]string `json:"acl"`
}

type CreateOperatorRequest struct {
	Username string            `json:"username" binding:"required"`
	Password string            `json:"password" binding:"required,min=8"`
	Role     string            `json:"role" binding:"required,oneof=admin operator viewer"`
	ACL      map[string]string `json:"acl"`
}

func tokenResponse(pair *auth.TokenPair) LoginResponse {
	return LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	pair, err := s.deps.Auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		if errors.Is(err, auth.ErrAccountLocked) {
			c.JSON(http.StatusForbidden, types.NewErrorResponse("AUTH_403", "Account locked", nil))
			return
		}
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

func (s *Server) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	pair, err := s.deps.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Invalid or expired refresh token", nil))
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

func (s *Server) logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.deps.Auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("AUTH_500", "Failed to logout", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (s *Server) getCurrentPrincipal(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	if p == nil {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Not authenticated", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"principal": p,
		"acl":       p.Grants.ACL(),
	})
}

func (s *Server) createAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("KEY_400", "Invalid request body", err.Error()))
		return
	}

	var createdBy *uuid.UUID
	if p := auth.PrincipalFrom(c); p != nil {
		createdBy = p.OperatorID
	}

	key, rec, err := s.deps.Auth.CreateAPIKey(c.Request.Context(), req.Name, req.ACL, createdBy)
	if err != nil {
		s.logger.Error("Failed to create api key", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("KEY_500", "Failed to create api key", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		Key:  key,
		ID:   rec.ID,
		Name: rec.Name,
		ACL:  rec.ACL,
	})
}

func (s *Server) listAPIKeys(c *gin.Context) {
	keys, err := s.deps.Auth.ListAPIKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("KEY_500", "Failed to list api keys", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (s *Server) deleteAPIKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("KEY_400", "Invalid api key id", nil))
		return
	}

	if err := s.deps.Auth.DeleteAPIKey(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("KEY_404", "API key not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("KEY_500", "Failed to delete api key", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "api key deleted"})
}

func (s *Server) createOperator(c *gin.Context) {
	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("OPERATOR_400", "Invalid request body", err.Error()))
		return
	}

	op, err := s.deps.Auth.CreateOperator(c.Request.Context(), req.Username, req.Password, req.Role, req.ACL)
	if err != nil {
		s.logger.Error("Failed to create operator", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("OPERATOR_500", "Failed to create operator", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, op)
}
