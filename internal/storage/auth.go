package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrAPIKeyNotFound   = errors.New("api key not found")
	ErrTokenNotFound    = errors.New("refresh token not found")
)

const operatorColumns = `id, username, password_hash, role, acl, created_at, last_login_at,
	failed_login_attempts, locked_until`

func scanOperator(row pgx.Row) (*Operator, error) {
	var op Operator
	err := row.Scan(
		&op.ID, &op.Username, &op.PasswordHash, &op.Role, &op.ACL, &op.CreatedAt,
		&op.LastLoginAt, &op.FailedLoginAttempts, &op.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return &op, nil
}

func (p *PostgresClient) GetOperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	return scanOperator(p.pool.QueryRow(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE username = $1`, username))
}

func (p *PostgresClient) GetOperatorByID(ctx context.Context, id uuid.UUID) (*Operator, error) {
	return scanOperator(p.pool.QueryRow(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE id = $1`, id))
}

func (p *PostgresClient) CreateOperator(ctx context.Context, username, passwordHash, role string, acl map[string]string) (*Operator, error) {
	if acl == nil {
		acl = map[string]string{}
	}
	return scanOperator(p.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash, role, acl)
		VALUES ($1, $2, $3, $4)
		RETURNING `+operatorColumns,
		username, passwordHash, role, acl))
}

// RecordLoginFailure increments the failure counter and locks the operator
// once maxAttempts is reached.
func (p *PostgresClient) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE operators
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3::interval
		        ELSE locked_until
		    END
		WHERE id = $1
	`, id, maxAttempts, lockFor.String())
	return err
}

// RecordLoginSuccess resets the failure counter and stamps the login time.
func (p *PostgresClient) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE operators
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

const apiKeyColumns = `id, key_hash, name, acl, created_at, last_used_at, created_by`

func scanAPIKey(row pgx.Row) (*APIKey, error) {
	var k APIKey
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.ACL, &k.CreatedAt, &k.LastUsedAt, &k.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &k, nil
}

func (p *PostgresClient) CreateAPIKey(ctx context.Context, keyHash, name string, acl map[string]string, createdBy *uuid.UUID) (*APIKey, error) {
	if acl == nil {
		acl = map[string]string{}
	}
	return scanAPIKey(p.pool.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, name, acl, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+apiKeyColumns,
		keyHash, name, acl, createdBy))
}

func (p *PostgresClient) GetAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	return scanAPIKey(p.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
}

func (p *PostgresClient) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

func (p *PostgresClient) ListAPIKeys(ctx context.Context) ([]*APIKey, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (p *PostgresClient) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func (p *PostgresClient) StoreRefreshToken(ctx context.Context, operatorID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (operator_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, operatorID, tokenHash, expiresAt)
	return err
}

// GetRefreshToken returns the operator owning a live refresh token.
func (p *PostgresClient) GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var (
		operatorID uuid.UUID
		expiresAt  time.Time
		revokedAt  *time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT operator_id, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&operatorID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	switch {
	case revokedAt != nil:
		return uuid.Nil, fmt.Errorf("refresh token revoked")
	case time.Now().After(expiresAt):
		return uuid.Nil, fmt.Errorf("refresh token expired")
	}
	return operatorID, nil
}

func (p *PostgresClient) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1
	`, tokenHash)
	return err
}

func (p *PostgresClient) LogAuthEvent(ctx context.Context, ev AuthEvent) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_events (event_type, operator_id, api_key_id, ip_address, user_agent, success, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.Type, ev.OperatorID, ev.APIKeyID, ev.IPAddress, ev.UserAgent, ev.Success, ev.Reason)
	return err
}
