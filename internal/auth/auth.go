// Package auth implements credential and session management: bcrypt
// password hashing with a server-side pepper, and opaque 256-bit
// session tokens with a 24 hour lifetime.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/writeright/writeright/internal/store"
)

// SessionTTL is how long a session stays valid after login.
const SessionTTL = 24 * time.Hour

const minPasswordLen = 8

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords
	// alike, so login failures do not leak which one it was.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrUnauthorized marks a missing, inactive, or expired session.
	ErrUnauthorized = errors.New("auth: session invalid or expired")

	// ErrEmailTaken rejects registration with an email already in use.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrInvalidArgument marks malformed registration input.
	ErrInvalidArgument = errors.New("auth: invalid argument")
)

// Store is the slice of the relational adapter auth uses.
type Store interface {
	Insert(ctx context.Context, table string, row store.Row) (store.Row, error)
	SelectOne(ctx context.Context, table string, where store.Row) (store.Row, error)
	Update(ctx context.Context, table string, values, where store.Row) (int64, error)
	CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error)
}

// User is the public account shape.
type User struct {
	ID        string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Exp       int64  `json:"exp"`
	Level     int64  `json:"level"`
	CreatedAt int64  `json:"created_at"`
}

func userFromRow(r store.Row) *User {
	return &User{
		ID:        store.String(r, "id"),
		Email:     store.String(r, "email"),
		Name:      store.String(r, "name"),
		Exp:       store.Int64(r, "exp"),
		Level:     store.Int64(r, "level"),
		CreatedAt: store.Int64(r, "created_at"),
	}
}

// Session is an issued login token.
type Session struct {
	ID        string `json:"session_id"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// Service handles registration, login, and session verification.
type Service struct {
	store   Store
	pepper  []byte
	devMode bool
	cost    int
	now     func() time.Time
}

// New builds the auth service. The pepper is mandatory outside dev
// mode; without it every password hash is portable across deployments.
func New(st Store, pepper string, devMode bool) (*Service, error) {
	if pepper == "" && !devMode {
		return nil, errors.New("auth: password pepper is required")
	}
	return &Service{
		store:   st,
		pepper:  []byte(pepper),
		devMode: devMode,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}, nil
}

// CreateUser creates a password-less account. Accounts made this way
// cannot log in until a password is set; the profile-managed
// registration path relies on that.
func (s *Service) CreateUser(ctx context.Context, name, email string) (*User, error) {
	if name == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and a valid email are required", ErrInvalidArgument)
	}
	rows, err := s.store.CallProc(ctx, "add_new_user", name, email)
	if err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	if store.Bool(rows[0], "existed") {
		return nil, ErrEmailTaken
	}
	return userFromRow(rows[0]), nil
}

// Register creates an account and stores its peppered password hash.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidArgument, minPasswordLen)
	}
	user, err := s.CreateUser(ctx, name, email)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword(s.peppered(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	_, err = s.store.Insert(ctx, "passwords", store.Row{
		"user_id":       user.ID,
		"password_hash": string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: store password: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues a session. In dev mode an
// @example.com email logs in without a password check, creating the
// account on first use.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, *User, error) {
	if s.devMode && strings.HasSuffix(email, "@example.com") {
		return s.devLogin(ctx, email)
	}

	row, err := s.store.SelectOne(ctx, "users", store.Row{"email": email})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("auth: look up user: %w", err)
	}
	user := userFromRow(row)

	pwRow, err := s.store.SelectOne(ctx, "passwords", store.Row{"user_id": user.ID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("auth: look up password: %w", err)
	}
	hash := []byte(store.String(pwRow, "password_hash"))
	if bcrypt.CompareHashAndPassword(hash, s.peppered(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

func (s *Service) devLogin(ctx context.Context, email string) (*Session, *User, error) {
	name, _, _ := strings.Cut(email, "@")
	rows, err := s.store.CallProc(ctx, "add_new_user", name, email)
	if err != nil || len(rows) == 0 {
		return nil, nil, fmt.Errorf("auth: dev login: %w", err)
	}
	user := userFromRow(rows[0])
	sess, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// Logout deactivates a session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	_, err := s.store.Update(ctx, "sessions",
		store.Row{"is_active": false},
		store.Row{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// Verify resolves a session token to its user. An expired session is
// deactivated on sight.
func (s *Service) Verify(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}
	row, err := s.store.SelectOne(ctx, "sessions", store.Row{
		"session_id": sessionID,
		"is_active":  true,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("auth: look up session: %w", err)
	}
	if store.Int64(row, "expires_at") <= s.now().Unix() {
		if _, err := s.store.Update(ctx, "sessions",
			store.Row{"is_active": false},
			store.Row{"session_id": sessionID}); err != nil {
			return nil, fmt.Errorf("auth: expire session: %w", err)
		}
		return nil, ErrUnauthorized
	}

	userRow, err := s.store.SelectOne(ctx, "users", store.Row{"id": store.String(row, "user_id")})
	if err != nil {
		return nil, fmt.Errorf("auth: look up session user: %w", err)
	}
	return userFromRow(userRow), nil
}

func (s *Service) issueSession(ctx context.Context, userID string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	sess := &Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: now + int64(SessionTTL.Seconds()),
	}
	_, err = s.store.Insert(ctx, "sessions", store.Row{
		"session_id": sess.ID,
		"user_id":    sess.UserID,
		"created_at": now,
		"expires_at": sess.ExpiresAt,
		"is_active":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: store session: %w", err)
	}
	return sess, nil
}

// newToken returns 256 bits of randomness, URL-safe encoded.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *Service) peppered(password string) []byte {
	return append([]byte(password), s.pepper...)
}
