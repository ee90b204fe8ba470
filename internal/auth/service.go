package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/config"
	"github.com/KevinKickass/dcscontrol/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Store is the persistence the service needs; *storage.PostgresClient
// implements it.
type Store interface {
	GetOperatorByUsername(ctx context.Context, username string) (*storage.Operator, error)
	GetOperatorByID(ctx context.Context, id uuid.UUID) (*storage.Operator, error)
	CreateOperator(ctx context.Context, username, passwordHash, role string, acl map[string]string) (*storage.Operator, error)
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) error
	RecordLoginSuccess(ctx context.Context, id uuid.UUID) error

	CreateAPIKey(ctx context.Context, keyHash, name string, acl map[string]string, createdBy *uuid.UUID) (*storage.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*storage.APIKey, error)
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
	ListAPIKeys(ctx context.Context) ([]*storage.APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error

	StoreRefreshToken(ctx context.Context, operatorID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	LogAuthEvent(ctx context.Context, ev storage.AuthEvent) error
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject    string     `json:"subject"`
	Role       string     `json:"role,omitempty"`
	OperatorID *uuid.UUID `json:"operator_id,omitempty"`
	APIKeyID   *uuid.UUID `json:"api_key_id,omitempty"`
	Grants     Grants     `json:"-"`
}

// Anonymous is the principal used when authentication is disabled.
func Anonymous() *Principal {
	return &Principal{Subject: "anonymous", Role: RoleAdmin, Grants: RoleGrants(RoleAdmin)}
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type Service struct {
	store       Store
	jwt         *JWTHandler
	hasher      *PasswordHasher
	maxAttempts int
	lockFor     time.Duration
	logger      *zap.Logger
}

func NewService(store Store, cfg config.AuthConfig, logger *zap.Logger) *Service {
	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready",
			zap.String("env", cfg.JWTSecretEnv))
	}
	return &Service{
		store:       store,
		jwt:         NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		hasher:      NewPasswordHasher(),
		maxAttempts: cfg.MaxFailedLoginAttempts,
		lockFor:     cfg.AccountLockDuration,
		logger:      logger,
	}
}

// Login checks the operator's password and issues a token pair.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*TokenPair, error) {
	op, err := s.store.GetOperatorByUsername(ctx, username)
	if err != nil {
		s.logEvent(ctx, storage.AuthEvent{Type: "login_failed", IPAddress: ip, UserAgent: userAgent, Reason: "operator not found"})
		return nil, ErrInvalidCredentials
	}

	if op.LockedUntil != nil && time.Now().Before(*op.LockedUntil) {
		s.logEvent(ctx, storage.AuthEvent{Type: "login_failed", OperatorID: &op.ID, IPAddress: ip, UserAgent: userAgent, Reason: "locked"})
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, op.LockedUntil.Format(time.RFC3339))
	}

	valid, err := s.hasher.VerifyPassword(password, op.PasswordHash)
	if err != nil || !valid {
		if err := s.store.RecordLoginFailure(ctx, op.ID, s.maxAttempts, s.lockFor); err != nil {
			s.logger.Error("Failed to record login failure", zap.Error(err))
		}
		s.logEvent(ctx, storage.AuthEvent{Type: "login_failed", OperatorID: &op.ID, IPAddress: ip, UserAgent: userAgent, Reason: "invalid password"})
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, op.ID); err != nil {
		s.logger.Error("Failed to record login", zap.Error(err))
	}

	pair, err := s.issue(ctx, op)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, storage.AuthEvent{Type: "login_success", OperatorID: &op.ID, IPAddress: ip, UserAgent: userAgent, Success: true})
	return pair, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// is issued with the operator's current ACL.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := HashToken(refreshToken)
	operatorID, err := s.store.GetRefreshToken(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	op, err := s.store.GetOperatorByID(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("operator not found: %w", err)
	}

	if err := s.store.RevokeRefreshToken(ctx, hash); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return s.issue(ctx, op)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.store.RevokeRefreshToken(ctx, HashToken(refreshToken))
}

func (s *Service) issue(ctx context.Context, op *storage.Operator) (*TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(op.ID, op.Username, op.Role, op.ACL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.jwt.refreshTokenTTL)
	if err := s.store.StoreRefreshToken(ctx, op.ID, HashToken(refresh), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.jwt.accessTokenTTL.Seconds()),
	}, nil
}

// Authenticate resolves a bearer token, JWT first, then API key.
func (s *Service) Authenticate(ctx context.Context, token, ip, userAgent string) (*Principal, error) {
	if claims, err := s.jwt.ValidateAccessToken(token); err == nil {
		grants := RoleGrants(claims.Role)
		if len(claims.ACL) > 0 {
			acl, err := ParseGrants(claims.ACL)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
			}
			grants = grants.Merge(acl)
		}
		id := claims.OperatorID
		return &Principal{Subject: claims.Username, Role: claims.Role, OperatorID: &id, Grants: grants}, nil
	}

	if !LooksLikeAPIKey(token) {
		return nil, ErrInvalidToken
	}

	key, err := s.store.GetAPIKeyByHash(ctx, HashToken(token))
	if err != nil {
		s.logEvent(ctx, storage.AuthEvent{Type: "api_key_failed", IPAddress: ip, UserAgent: userAgent, Reason: "key not found"})
		return nil, ErrInvalidToken
	}
	grants, err := ParseGrants(key.ACL)
	if err != nil {
		s.logger.Error("Stored api key has invalid acl",
			zap.String("key", key.Name),
			zap.Error(err))
		return nil, ErrInvalidToken
	}

	if err := s.store.TouchAPIKey(ctx, key.ID); err != nil {
		s.logger.Warn("Failed to update api key usage", zap.Error(err))
	}
	id := key.ID
	return &Principal{Subject: "apikey:" + key.Name, APIKeyID: &id, Grants: grants}, nil
}

func (s *Service) CreateOperator(ctx context.Context, username, password, role string, acl map[string]string) (*storage.Operator, error) {
	if _, err := ParseGrants(acl); err != nil {
		return nil, err
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.CreateOperator(ctx, username, hash, role, acl)
}

// CreateAPIKey returns the plain key once together with its record.
func (s *Service) CreateAPIKey(ctx context.Context, name string, acl map[string]string, createdBy *uuid.UUID) (string, *storage.APIKey, error) {
	if _, err := ParseGrants(acl); err != nil {
		return "", nil, err
	}
	key, hash, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	rec, err := s.store.CreateAPIKey(ctx, hash, name, acl, createdBy)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}
	s.logEvent(ctx, storage.AuthEvent{Type: "api_key_created", OperatorID: createdBy, APIKeyID: &rec.ID, Success: true})
	return key, rec, nil
}

func (s *Service) ListAPIKeys(ctx context.Context) ([]*storage.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

func (s *Service) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAPIKey(ctx, id)
}

func (s *Service) logEvent(ctx context.Context, ev storage.AuthEvent) {
	if err := s.store.LogAuthEvent(ctx, ev); err != nil {
		s.logger.Warn("Failed to log auth event",
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}
