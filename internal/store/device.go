package store

import (
	"database/sql"
	"time"
)

// UpsertDeviceAccount records the paired WhatsApp account state.
func (db *DB) UpsertDeviceAccount(d *DeviceAccount) error {
	_, err := db.Exec(`
		INSERT INTO device_accounts (id, phone, display_name, status, connected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE device_accounts.phone END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE device_accounts.display_name END,
			status = excluded.status,
			connected_at = excluded.connected_at`,
		d.ID, d.Phone, d.DisplayName, d.Status, d.ConnectedAt)
	return err
}

// MarkDeviceConnected flips the device account to connected now.
func (db *DB) MarkDeviceConnected(id, phone string) error {
	return db.UpsertDeviceAccount(&DeviceAccount{
		ID:          id,
		Phone:       phone,
		Status:      "connected",
		ConnectedAt: time.Now().UnixMilli(),
	})
}

// GetDeviceAccount returns the device account, or nil when never paired.
func (db *DB) GetDeviceAccount(id string) (*DeviceAccount, error) {
	var d DeviceAccount
	err := db.QueryRow(`
		SELECT id, phone, display_name, status, connected_at FROM device_accounts WHERE id = ?`, id).
		Scan(&d.ID, &d.Phone, &d.DisplayName, &d.Status, &d.ConnectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
