package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/auth"
	"github.com/wacrm/wacrm/internal/store"
)

func sessionFrom(r *http.Request) *auth.Session {
	if s := auth.FromContext(r.Context()); s != nil {
		return s
	}
	return &auth.Session{}
}

// handleMe returns the authenticated user's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	user, err := s.db.GetUser(session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get user failed")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     user.ID,
		"email":  user.Email,
		"name":   user.Name,
		"role":   user.Role,
		"org_id": user.OrgID,
	})
}

// createOrgUser registers an additional portal user inside the organization.
func (s *Server) createOrgUser(orgID, email, name, password, role string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.db.GetUserByEmail(email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", fmt.Errorf("email %s already registered", email)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		OrgID:        orgID,
	}
	if err := s.db.CreateUser(user); err != nil {
		return "", err
	}
	if err := s.db.AddOrganizationMember(&store.OrganizationMember{
		OrgID: orgID, UserID: user.ID, Role: role,
	}); err != nil {
		return "", err
	}
	return user.ID, nil
}
