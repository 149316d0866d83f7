package store

import (
	"database/sql"
	"time"
)

// UpsertTemplate inserts or updates a template.
func (db *DB) UpsertTemplate(t *Template) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO templates (id, org_id, name, language, category, status, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			language = excluded.language,
			category = excluded.category,
			status = excluded.status,
			body = excluded.body`,
		t.ID, t.OrgID, t.Name, t.Language, t.Category, t.Status, t.Body, t.CreatedAt)
	return err
}

// ListTemplates returns all templates ordered by name.
func (db *DB) ListTemplates() ([]Template, error) {
	rows, err := db.Query(`
		SELECT id, org_id, name, language, category, status, body, created_at
		FROM templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var templates []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.Language, &t.Category, &t.Status, &t.Body, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetTemplate returns a template by id, or nil when absent.
func (db *DB) GetTemplate(id string) (*Template, error) {
	var t Template
	err := db.QueryRow(`
		SELECT id, org_id, name, language, category, status, body, created_at
		FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.OrgID, &t.Name, &t.Language, &t.Category, &t.Status, &t.Body, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTemplate removes a template.
func (db *DB) DeleteTemplate(id string) error {
	_, err := db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	return err
}
