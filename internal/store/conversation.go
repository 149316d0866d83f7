package store

import (
	"database/sql"
	"fmt"
	"time"
)

const conversationColumns = `id, chat_jid, contact_id, contact_name, contact_phone, contact_avatar,
	contact_type, status, tags, assigned_to, unread_count,
	last_message_at, last_message_preview, last_message_from_me, last_message_read`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var tags string
	err := row.Scan(&c.ID, &c.ChatJID, &c.ContactID, &c.ContactName, &c.ContactPhone,
		&c.ContactAvatar, &c.ContactType, &c.Status, &tags, &c.AssignedTo,
		&c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview,
		&c.LastMessageFromMe, &c.LastMessageRead)
	if err != nil {
		return nil, err
	}
	c.Tags = decodeTags(tags)
	return &c, nil
}

// UpsertConversation inserts or updates a conversation record, keyed by chat JID.
// Contact identity fields only overwrite when the incoming value is non-empty.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, chat_jid, contact_id, contact_name, contact_phone, contact_avatar,
			contact_type, status, tags, assigned_to, unread_count,
			last_message_at, last_message_preview, last_message_from_me, last_message_read, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_jid) DO UPDATE SET
			contact_name = CASE WHEN excluded.contact_name != '' THEN excluded.contact_name ELSE conversations.contact_name END,
			contact_avatar = CASE WHEN excluded.contact_avatar != '' THEN excluded.contact_avatar ELSE conversations.contact_avatar END,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			last_message_from_me = excluded.last_message_from_me,
			last_message_read = excluded.last_message_read,
			updated_at = excluded.updated_at`,
		c.ID, c.ChatJID, c.ContactID, c.ContactName, c.ContactPhone, c.ContactAvatar,
		c.ContactType, c.Status, encodeTags(c.Tags), c.AssignedTo, c.UnreadCount,
		c.LastMessageAt, c.LastMessagePreview, c.LastMessageFromMe, c.LastMessageRead, now)
	return err
}

// ListConversations returns conversations sorted by last message timestamp descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convos []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convos = append(convos, *c)
	}
	return convos, rows.Err()
}

// GetConversation returns a single conversation by id.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`
		SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversationByJID returns a single conversation by chat JID.
func (db *DB) GetConversationByJID(jid string) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`
		SELECT `+conversationColumns+` FROM conversations WHERE chat_jid = ?`, jid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteConversation removes a conversation and cascades to its messages.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// SetConversationStatus updates the free-text status (e.g. "archived").
func (db *DB) SetConversationStatus(id, status string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	return err
}

// SetConversationTags replaces the tag set.
func (db *DB) SetConversationTags(id string, tags []string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET tags = ?, updated_at = ? WHERE id = ?`, encodeTags(tags), now, id)
	return err
}

// SetConversationAssignee updates the owner reference.
func (db *DB) SetConversationAssignee(id, assignee string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET assigned_to = ?, updated_at = ? WHERE id = ?`, assignee, now, id)
	return err
}

// TouchLastMessage updates the conversation's last-message summary.
func (db *DB) TouchLastMessage(id, preview string, at int64, fromMe bool) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE conversations
		SET last_message_preview = ?, last_message_at = ?, last_message_from_me = ?, last_message_read = ?, updated_at = ?
		WHERE id = ?`,
		preview, at, fromMe, fromMe, now, id)
	return err
}

// MarkConversationRead zeroes the unread counter.
func (db *DB) MarkConversationRead(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread_count = 0, last_message_read = 1, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// ConversationCount returns the total number of conversations.
func (db *DB) ConversationCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}
