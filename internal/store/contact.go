package store

import (
	"database/sql"
	"time"
)

// UpsertClient inserts or updates a client record.
func (db *DB) UpsertClient(c *Client) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO clients (id, org_id, name, phone, email, avatar_url, tags, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE clients.avatar_url END,
			tags = excluded.tags,
			notes = excluded.notes`,
		c.ID, c.OrgID, c.Name, c.Phone, c.Email, c.AvatarURL, encodeTags(c.Tags), c.Notes, c.CreatedAt)
	return err
}

// ListClients returns all clients ordered by name.
func (db *DB) ListClients() ([]Client, error) {
	rows, err := db.Query(`
		SELECT id, org_id, name, phone, email, avatar_url, tags, notes, created_at
		FROM clients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []Client
	for rows.Next() {
		var c Client
		var tags string
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.Email, &c.AvatarURL, &tags, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Tags = decodeTags(tags)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClient returns a client by id, or nil when absent.
func (db *DB) GetClient(id string) (*Client, error) {
	var c Client
	var tags string
	err := db.QueryRow(`
		SELECT id, org_id, name, phone, email, avatar_url, tags, notes, created_at
		FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.Phone, &c.Email, &c.AvatarURL, &tags, &c.Notes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Tags = decodeTags(tags)
	return &c, nil
}

// DeleteClient removes a client record.
func (db *DB) DeleteClient(id string) error {
	_, err := db.Exec(`DELETE FROM clients WHERE id = ?`, id)
	return err
}

// UpsertLead inserts or updates a lead record.
func (db *DB) UpsertLead(l *Lead) error {
	if l.CreatedAt == 0 {
		l.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO leads (id, org_id, name, phone, email, source, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			source = excluded.source,
			status = excluded.status`,
		l.ID, l.OrgID, l.Name, l.Phone, l.Email, l.Source, l.Status, l.CreatedAt)
	return err
}

// ListLeads returns all leads ordered by creation time descending.
func (db *DB) ListLeads() ([]Lead, error) {
	rows, err := db.Query(`
		SELECT id, org_id, name, phone, email, source, status, created_at
		FROM leads ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leads []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.OrgID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// GetLead returns a lead by id, or nil when absent.
func (db *DB) GetLead(id string) (*Lead, error) {
	var l Lead
	err := db.QueryRow(`
		SELECT id, org_id, name, phone, email, source, status, created_at
		FROM leads WHERE id = ?`, id).
		Scan(&l.ID, &l.OrgID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// DeleteLead removes a lead record.
func (db *DB) DeleteLead(id string) error {
	_, err := db.Exec(`DELETE FROM leads WHERE id = ?`, id)
	return err
}

// UpsertTeamMember inserts or updates a team member.
func (db *DB) UpsertTeamMember(m *TeamMember) error {
	_, err := db.Exec(`
		INSERT INTO team_members (id, org_id, user_id, name, phone, role, online, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			role = excluded.role,
			online = excluded.online,
			last_seen_at = excluded.last_seen_at`,
		m.ID, m.OrgID, m.UserID, m.Name, m.Phone, m.Role, m.Online, m.LastSeenAt)
	return err
}

// ListTeamMembers returns all team members ordered by name.
func (db *DB) ListTeamMembers() ([]TeamMember, error) {
	rows, err := db.Query(`
		SELECT id, org_id, user_id, name, phone, role, online, last_seen_at
		FROM team_members ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Name, &m.Phone, &m.Role, &m.Online, &m.LastSeenAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ConvertLeadToClient promotes a lead into the client book, keeping its id so
// existing conversations stay linked. Conversations with the contact are
// reclassified in the same transaction.
func (db *DB) ConvertLeadToClient(leadID string) (*Client, error) {
	lead, err := db.GetLead(leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	client := &Client{
		ID:        lead.ID,
		OrgID:     lead.OrgID,
		Name:      lead.Name,
		Phone:     lead.Phone,
		Email:     lead.Email,
		Notes:     "converted from lead (" + lead.Source + ")",
		CreatedAt: time.Now().UnixMilli(),
	}
	if _, err := tx.Exec(`
		INSERT INTO clients (id, org_id, name, phone, email, avatar_url, tags, notes, created_at)
		VALUES (?, ?, ?, ?, ?, '', '[]', ?, ?)`,
		client.ID, client.OrgID, client.Name, client.Phone, client.Email, client.Notes, client.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`DELETE FROM leads WHERE id = ?`, leadID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		UPDATE conversations SET contact_type = ? WHERE contact_id = ?`,
		ContactClient, leadID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return client, nil
}

// ResolveContactByPhone classifies a phone number against the three contact
// sources. Team members win over clients, clients over leads; an unknown
// number yields nil.
func (db *DB) ResolveContactByPhone(phone string) (*Contact, error) {
	row := db.QueryRow(`
		SELECT id, name, phone, 'team' AS type, '' AS avatar_url FROM team_members WHERE phone = ?
		UNION ALL
		SELECT id, name, phone, 'client', avatar_url FROM clients WHERE phone = ?
		UNION ALL
		SELECT id, name, phone, 'lead', '' FROM leads WHERE phone = ?
		LIMIT 1`, phone, phone, phone)

	var c Contact
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Type, &c.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns the merged contact view over all three sources.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, name, phone, 'team' AS type, '' AS avatar_url FROM team_members
		UNION ALL
		SELECT id, name, phone, 'client', avatar_url FROM clients
		UNION ALL
		SELECT id, name, phone, 'lead', '' FROM leads
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Type, &c.AvatarURL); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
