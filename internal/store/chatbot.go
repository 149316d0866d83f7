package store

import (
	"database/sql"
	"time"
)

// UpsertChatbot inserts or updates a chatbot configuration.
func (db *DB) UpsertChatbot(c *Chatbot) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO chatbots (id, org_id, name, enabled, keywords, reply_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			keywords = excluded.keywords,
			reply_body = excluded.reply_body`,
		c.ID, c.OrgID, c.Name, c.Enabled, encodeTags(c.Keywords), c.ReplyBody, c.CreatedAt)
	return err
}

// ListChatbots returns all chatbots. When enabledOnly is set, disabled bots
// are filtered out.
func (db *DB) ListChatbots(enabledOnly bool) ([]Chatbot, error) {
	q := `SELECT id, org_id, name, enabled, keywords, reply_body, created_at FROM chatbots`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY created_at`

	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var bots []Chatbot
	for rows.Next() {
		var c Chatbot
		var keywords string
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Enabled, &keywords, &c.ReplyBody, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Keywords = decodeTags(keywords)
		bots = append(bots, c)
	}
	return bots, rows.Err()
}

// GetChatbot returns a chatbot by id, or nil when absent.
func (db *DB) GetChatbot(id string) (*Chatbot, error) {
	var c Chatbot
	var keywords string
	err := db.QueryRow(`
		SELECT id, org_id, name, enabled, keywords, reply_body, created_at
		FROM chatbots WHERE id = ?`, id).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.Enabled, &keywords, &c.ReplyBody, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Keywords = decodeTags(keywords)
	return &c, nil
}

// DeleteChatbot removes a chatbot configuration.
func (db *DB) DeleteChatbot(id string) error {
	_, err := db.Exec(`DELETE FROM chatbots WHERE id = ?`, id)
	return err
}
