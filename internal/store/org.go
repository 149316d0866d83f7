package store

import (
	"database/sql"
	"time"
)

// CreateOrganization inserts the tenant profile with a default subscription.
func (db *DB) CreateOrganization(o *Organization) error {
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().UnixMilli()
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO organizations (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		o.ID, o.Name, o.Slug, o.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO organization_subscriptions (org_id, plan, status) VALUES (?, 'free', 'active')`,
		o.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetOrganization returns the organization by id, or nil when absent.
func (db *DB) GetOrganization(id string) (*Organization, error) {
	var o Organization
	err := db.QueryRow(`SELECT id, name, slug, created_at FROM organizations WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// AddOrganizationMember links a user into the organization.
func (db *DB) AddOrganizationMember(m *OrganizationMember) error {
	_, err := db.Exec(`
		INSERT INTO organization_members (org_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(org_id, user_id) DO UPDATE SET role = excluded.role`,
		m.OrgID, m.UserID, m.Role)
	return err
}

// GetSubscription returns the organization's subscription, or nil when absent.
func (db *DB) GetSubscription(orgID string) (*Subscription, error) {
	var s Subscription
	err := db.QueryRow(`
		SELECT org_id, plan, status, expires_at FROM organization_subscriptions WHERE org_id = ?`, orgID).
		Scan(&s.OrgID, &s.Plan, &s.Status, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSubscription updates the organization's plan state.
func (db *DB) SetSubscription(s *Subscription) error {
	_, err := db.Exec(`
		INSERT INTO organization_subscriptions (org_id, plan, status, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			expires_at = excluded.expires_at`,
		s.OrgID, s.Plan, s.Status, s.ExpiresAt)
	return err
}

// CreateUser inserts a portal user.
func (db *DB) CreateUser(u *User) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO users (id, email, password_hash, name, role, org_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.OrgID, u.CreatedAt)
	return err
}

// GetUserByEmail returns a user by email, or nil when absent.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, email, password_hash, name, role, org_id, created_at
		FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.OrgID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns a user by id, or nil when absent.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, email, password_hash, name, role, org_id, created_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.OrgID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
