package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/wacrm/wacrm/internal/auth"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

type signupRequest struct {
	OrgName  string `json:"org_name"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup creates the organization and its first admin user. The
// workspace hosts a single tenant, so a second signup is rejected.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.OrgName == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "org name, email and a password of 8+ characters are required")
		return
	}

	existing, err := s.db.GetUserByEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	org := &store.Organization{
		ID:   uuid.NewString(),
		Name: req.OrgName,
		Slug: slugify(req.OrgName),
	}
	if err := s.db.CreateOrganization(org); err != nil {
		writeError(w, http.StatusConflict, "organization already exists")
		return
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         auth.RoleAdmin,
		OrgID:        org.ID,
	}
	if err := s.db.CreateUser(user); err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	if err := s.db.AddOrganizationMember(&store.OrganizationMember{
		OrgID: org.ID, UserID: user.ID, Role: user.Role,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	token, err := s.auth.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	s.logger.Info("organization created",
		zap.String("org_id", org.ID), zap.String("email", user.Email))
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":  token,
		"org_id": org.ID,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	user, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := s.auth.IssueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"name":  user.Name,
		"role":  user.Role,
	})
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
