package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/dcscontrol/internal/types"
)

// InsertAuditRecord stores one command audit record.
func (p *PostgresClient) InsertAuditRecord(ctx context.Context, rec types.AuditRecord) error {
	args := rec.Args
	if args == nil {
		args = []string{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO command_audit (
			id, created_at, server_id, account_id, device_id, unique_id,
			command, command_string, args, transport, result_code, message,
			status_code, requested_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.Timestamp, rec.Server, rec.AccountID, rec.DeviceID, rec.UniqueID,
		rec.Command, rec.CommandString, args, rec.Transport, rec.ResultCode, rec.Message,
		rec.StatusCode, rec.RequestedBy)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListAuditRecords returns the newest records for a device.
func (p *PostgresClient) ListAuditRecords(ctx context.Context, accountID, deviceID string, limit int) ([]types.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, created_at, server_id, account_id, device_id, unique_id,
		       command, command_string, args, transport, result_code, message,
		       status_code, requested_by
		FROM command_audit
		WHERE account_id = $1 AND device_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, accountID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]types.AuditRecord, 0)
	for rows.Next() {
		var r types.AuditRecord
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Server, &r.AccountID, &r.DeviceID, &r.UniqueID,
			&r.Command, &r.CommandString, &r.Args, &r.Transport, &r.ResultCode, &r.Message,
			&r.StatusCode, &r.RequestedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
