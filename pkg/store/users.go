package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/antibyte/simplimath/pkg/logger"
)

// MinPasswordLength is enforced by CreateUser.
const MinPasswordLength = 6

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUser registers username with a bcrypt hash of password.
func (s *Store) CreateUser(username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if !ValidName(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, username)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if exists > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u := &User{ID: uuid.New().String(), Username: username, CreatedAt: time.Unix(now.Unix(), 0)}
	_, err = s.db.Exec("INSERT INTO users (id, username, password, created_at) VALUES (?, ?, ?, ?)",
		u.ID, u.Username, string(hash), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	logger.AuthInfo("Registered user %s", username)
	return u, nil
}

// VerifyUser checks the password and records the login time.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *Store) VerifyUser(username, password string) (*User, error) {
	var u User
	var hash string
	var created int64
	err := s.db.QueryRow("SELECT id, username, password, created_at FROM users WHERE username = ?",
		strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &hash, &created)
	if err == sql.ErrNoRows {
		logger.AuthWarn("Login failed for unknown user '%s'", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		logger.AuthWarn("Login failed for user '%s': incorrect password", username)
		return nil, ErrInvalidCredentials
	}
	u.CreatedAt = time.Unix(created, 0)

	if _, err := s.db.Exec("UPDATE users SET last_login = ? WHERE id = ?", s.now().Unix(), u.ID); err != nil {
		logger.StorageWarn("Failed to update last_login for %s: %v", u.Username, err)
	}
	return &u, nil
}
