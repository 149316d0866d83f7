package store

import (
	"strings"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_name, body, message_type, from_me, status, timestamp,
			media_url, media_type, media_filename, media_duration, media_size, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			status = excluded.status,
			media_url = CASE WHEN excluded.media_url != '' THEN excluded.media_url ELSE messages.media_url END`,
		m.ConversationID, m.MsgID, m.SenderName, m.Body, m.MessageType, m.FromMe, m.Status, m.Timestamp,
		m.MediaURL, m.MediaType, m.MediaFilename, m.MediaDuration, m.MediaSize, m.Latitude, m.Longitude, now)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination by timestamp.
func (db *DB) ListMessages(conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_name, body, message_type, from_me, status, timestamp,
			media_url, media_type, media_filename, media_duration, media_size, latitude, longitude
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.MsgID, &m.SenderName, &m.Body,
			&m.MessageType, &m.FromMe, &m.Status, &m.Timestamp,
			&m.MediaURL, &m.MediaType, &m.MediaFilename, &m.MediaDuration, &m.MediaSize,
			&m.Latitude, &m.Longitude); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ReassignMessageID swaps a placeholder's client id for the server-assigned id
// and sets the final status. Used when a send is acknowledged.
func (db *DB) ReassignMessageID(conversationID, clientMsgID, serverMsgID, status string) error {
	_, err := db.Exec(`
		UPDATE messages SET msg_id = ?, status = ?
		WHERE conversation_id = ? AND msg_id = ?`,
		serverMsgID, status, conversationID, clientMsgID)
	return err
}

// SetMessageStatus updates the delivery status of a single message.
func (db *DB) SetMessageStatus(conversationID, msgID, status string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND msg_id = ?`,
		status, conversationID, msgID)
	return err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// ftsQuery turns raw user input into an FTS5 query of quoted phrase terms,
// so query-syntax characters (unbalanced quotes, leading -) cannot make the
// MATCH expression fail to parse.
func ftsQuery(input string) string {
	terms := strings.Fields(input)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// SearchMessages performs a full-text search on message bodies.
func (db *DB) SearchMessages(query string, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	q := `
		SELECT m.id, m.conversation_id, m.msg_id, m.sender_name, m.body,
		       m.message_type, m.from_me, m.status, m.timestamp,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{match}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ConversationID, &r.Message.MsgID,
			&r.Message.SenderName, &r.Message.Body,
			&r.Message.MessageType, &r.Message.FromMe, &r.Message.Status,
			&r.Message.Timestamp, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
