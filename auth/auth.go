/*
Package auth provides credential verification and session tokens.

PURPOSE:
  Verifies dashboard logins against bcrypt password hashes and issues
  short-lived HS256 JWT session tokens carrying the username and role.
  The HTTP layer attaches Middleware to routes that need a session and
  RequireRole where a specific role is needed (the audit purge is
  admin-only).

ROLES:
  admin, doctor, staff. Role strings travel inside the token; the store
  holds the authoritative copy.

SEE ALSO:
  - store/sqlite/records.go: the user store
  - api/server.go: route wiring
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
	RoleStaff  = "staff"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// User is the authenticated identity extracted from a session token.
type User struct {
	Username string
	Role     string
}

// UserStore is the slice of the persistence layer auth needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*StoredUser, error)
}

// StoredUser is a persisted login record.
type StoredUser struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Service verifies credentials and mints/validates session tokens.
type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates an auth service. ttl bounds session lifetime.
func NewService(store UserStore, secret string, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Login checks the credential and returns a signed session token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.Username,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (s *Service) Verify(tokenStr string) (*User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	username, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if username == "" || role == "" {
		return nil, ErrInvalidToken
	}
	return &User{Username: username, Role: role}, nil
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

type contextKey string

const userKey contextKey = "auth.user"

// FromContext returns the authenticated user, if any.
func FromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey).(*User)
	return user, ok
}

// Middleware rejects requests without a valid bearer token and stores
// the authenticated user on the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		user, err := s.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// RequireRole rejects authenticated requests whose role does not match.
// Must be mounted inside Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := FromContext(r.Context())
			if !ok || user.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
