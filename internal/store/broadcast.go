package store

import (
	"database/sql"
	"time"
)

// UpsertBroadcast inserts or updates a broadcast campaign.
func (db *DB) UpsertBroadcast(b *Broadcast) error {
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO broadcasts (id, org_id, name, template_id, audience, audience_tag, status,
			queued_count, sent_count, failed_count, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			template_id = excluded.template_id,
			audience = excluded.audience,
			audience_tag = excluded.audience_tag,
			status = excluded.status,
			queued_count = excluded.queued_count,
			sent_count = excluded.sent_count,
			failed_count = excluded.failed_count,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		b.ID, b.OrgID, b.Name, b.TemplateID, b.Audience, b.AudienceTag, b.Status,
		b.QueuedCount, b.SentCount, b.FailedCount, b.CreatedAt, b.StartedAt, b.FinishedAt)
	return err
}

// ListBroadcasts returns all broadcasts ordered by creation time descending.
func (db *DB) ListBroadcasts() ([]Broadcast, error) {
	rows, err := db.Query(`
		SELECT id, org_id, name, template_id, audience, audience_tag, status,
			queued_count, sent_count, failed_count, created_at, started_at, finished_at
		FROM broadcasts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var broadcasts []Broadcast
	for rows.Next() {
		var b Broadcast
		if err := rows.Scan(&b.ID, &b.OrgID, &b.Name, &b.TemplateID, &b.Audience, &b.AudienceTag,
			&b.Status, &b.QueuedCount, &b.SentCount, &b.FailedCount,
			&b.CreatedAt, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, rows.Err()
}

// GetBroadcast returns a broadcast by id, or nil when absent.
func (db *DB) GetBroadcast(id string) (*Broadcast, error) {
	var b Broadcast
	err := db.QueryRow(`
		SELECT id, org_id, name, template_id, audience, audience_tag, status,
			queued_count, sent_count, failed_count, created_at, started_at, finished_at
		FROM broadcasts WHERE id = ?`, id).
		Scan(&b.ID, &b.OrgID, &b.Name, &b.TemplateID, &b.Audience, &b.AudienceTag,
			&b.Status, &b.QueuedCount, &b.SentCount, &b.FailedCount,
			&b.CreatedAt, &b.StartedAt, &b.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListRunningBroadcasts returns broadcasts in the running state.
func (db *DB) ListRunningBroadcasts() ([]Broadcast, error) {
	rows, err := db.Query(`
		SELECT id, org_id, name, template_id, audience, audience_tag, status,
			queued_count, sent_count, failed_count, created_at, started_at, finished_at
		FROM broadcasts WHERE status = ? ORDER BY started_at`, BroadcastRunning)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var broadcasts []Broadcast
	for rows.Next() {
		var b Broadcast
		if err := rows.Scan(&b.ID, &b.OrgID, &b.Name, &b.TemplateID, &b.Audience, &b.AudienceTag,
			&b.Status, &b.QueuedCount, &b.SentCount, &b.FailedCount,
			&b.CreatedAt, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, rows.Err()
}

// AddBroadcastRecipient records one planned delivery.
func (db *DB) AddBroadcastRecipient(r *BroadcastRecipient) error {
	_, err := db.Exec(`
		INSERT INTO broadcast_recipients (broadcast_id, phone, name, client_msg_id, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(broadcast_id, phone) DO NOTHING`,
		r.BroadcastID, r.Phone, r.Name, r.ClientMsgID, r.Status)
	return err
}

// ListBroadcastRecipients returns all recipients of a broadcast.
func (db *DB) ListBroadcastRecipients(broadcastID string) ([]BroadcastRecipient, error) {
	rows, err := db.Query(`
		SELECT broadcast_id, phone, name, client_msg_id, status
		FROM broadcast_recipients WHERE broadcast_id = ?`, broadcastID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recipients []BroadcastRecipient
	for rows.Next() {
		var r BroadcastRecipient
		if err := rows.Scan(&r.BroadcastID, &r.Phone, &r.Name, &r.ClientMsgID, &r.Status); err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// SetRecipientStatusByClientMsgID resolves a recipient's delivery outcome from
// the outbox ack that carries its client message id.
func (db *DB) SetRecipientStatusByClientMsgID(clientMsgID, status string) (string, error) {
	var broadcastID string
	err := db.QueryRow(`
		SELECT broadcast_id FROM broadcast_recipients WHERE client_msg_id = ?`, clientMsgID).
		Scan(&broadcastID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	_, err = db.Exec(`UPDATE broadcast_recipients SET status = ? WHERE client_msg_id = ?`, status, clientMsgID)
	return broadcastID, err
}

// RecordBroadcastDelivery bumps the sent or failed counter and flips the
// broadcast to finished once every queued recipient is resolved. It returns
// the updated broadcast.
func (db *DB) RecordBroadcastDelivery(id string, failed bool) (*Broadcast, error) {
	col := "sent_count"
	if failed {
		col = "failed_count"
	}
	if _, err := db.Exec(`UPDATE broadcasts SET `+col+` = `+col+` + 1 WHERE id = ?`, id); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	if _, err := db.Exec(`
		UPDATE broadcasts SET status = ?, finished_at = ?
		WHERE id = ? AND status = ? AND sent_count + failed_count >= queued_count`,
		BroadcastFinished, now, id, BroadcastRunning); err != nil {
		return nil, err
	}
	return db.GetBroadcast(id)
}

// BroadcastCount returns the total number of broadcasts.
func (db *DB) BroadcastCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM broadcasts`).Scan(&count)
	return count, err
}
