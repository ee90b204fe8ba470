package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/jackc/pgx/v5"
)

const deviceColumns = `
	d.account_id, a.sms_enabled, d.device_id, d.unique_id, d.server_id,
	d.data_key, d.modem_id, d.imei, d.serial_number, d.sim_phone,
	d.max_ping_count, d.total_ping_count`

func scanDevice(row pgx.Row) (*types.Device, error) {
	var d types.Device
	err := row.Scan(
		&d.Account.ID, &d.Account.SMSEnabled, &d.ID, &d.UniqueID, &d.ServerID,
		&d.DataKey, &d.ModemID, &d.IMEI, &d.SerialNumber, &d.SimPhone,
		&d.MaxPingCount, &d.TotalPingCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	return &d, nil
}

// DeviceByUniqueID looks a device up by its transport unique id.
func (p *PostgresClient) DeviceByUniqueID(ctx context.Context, uniqueID string) (*types.Device, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM devices d
		JOIN accounts a ON a.account_id = d.account_id
		WHERE d.unique_id = $1
	`, uniqueID)
	return scanDevice(row)
}

// DeviceByID looks a device up by account and device id.
func (p *PostgresClient) DeviceByID(ctx context.Context, accountID, deviceID string) (*types.Device, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM devices d
		JOIN accounts a ON a.account_id = d.account_id
		WHERE d.account_id = $1 AND d.device_id = $2
	`, accountID, deviceID)
	return scanDevice(row)
}

// IncrementPingCount bumps the device's command counter and refreshes
// dev.TotalPingCount from the stored value.
func (p *PostgresClient) IncrementPingCount(ctx context.Context, dev *types.Device) error {
	err := p.pool.QueryRow(ctx, `
		UPDATE devices
		SET total_ping_count = total_ping_count + 1,
		    last_ping_at = NOW(),
		    updated_at = NOW()
		WHERE account_id = $1 AND device_id = $2
		RETURNING total_ping_count
	`, dev.Account.ID, dev.ID).Scan(&dev.TotalPingCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrDeviceNotFound
		}
		return fmt.Errorf("failed to increment ping count: %w", err)
	}
	return nil
}

// ResetPingCount clears the command counter, re-enabling a device that hit
// its limit.
func (p *PostgresClient) ResetPingCount(ctx context.Context, accountID, deviceID string) error {
	result, err := p.pool.Exec(ctx, `
		UPDATE devices SET total_ping_count = 0, updated_at = NOW()
		WHERE account_id = $1 AND device_id = $2
	`, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to reset ping count: %w", err)
	}
	if result.RowsAffected() == 0 {
		return types.ErrDeviceNotFound
	}
	return nil
}
