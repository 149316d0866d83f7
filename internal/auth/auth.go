package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wacrm/wacrm/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Roles, in ascending privilege order.
const (
	RoleAgent      = "agent"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

var roleRank = map[string]int{
	RoleAgent:      1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// ErrInvalidToken is returned for expired, malformed or mis-signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Session is the authenticated caller's identity, carried explicitly on the
// request context. Authorization decisions read this object and nothing else.
type Session struct {
	UserID string
	OrgID  string
	Role   string
}

// Allows reports whether the session's role meets the required role.
func (s *Session) Allows(required string) bool {
	return roleRank[s.Role] >= roleRank[required]
}

// Claims is the JWT payload.
type Claims struct {
	UserID string `json:"uid"`
	OrgID  string `json:"org"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service. ttl <= 0 defaults to 24h.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against its bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken signs a session token for a user.
func (s *Service) IssueToken(u *store.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		OrgID:  u.OrgID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a session token.
func (s *Service) VerifyToken(tokenStr string) (*Session, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Session{UserID: claims.UserID, OrgID: claims.OrgID, Role: claims.Role}, nil
}

type ctxKey struct{}

// WithSession attaches a session to a context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session on a context, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
