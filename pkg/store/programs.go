package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antibyte/simplimath/pkg/logger"
)

// maxNameLength bounds program names.
const maxNameLength = 64

// Program is a saved SimpliMath source text.
type Program struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidName reports whether name can be used for a program or user.
func ValidName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return !strings.HasPrefix(name, ".")
}

// SaveProgram stores source under (owner, name), replacing an existing one.
func (s *Store) SaveProgram(owner, name, source string) (*Program, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	now := s.now()

	existing, err := s.LoadProgram(owner, name)
	switch {
	case err == nil:
		_, err = s.db.Exec("UPDATE programs SET source = ?, updated_at = ? WHERE id = ?",
			source, now.UnixNano(), existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update program: %w", err)
		}
		existing.Source = source
		existing.UpdatedAt = time.Unix(0, now.UnixNano())
		logger.StorageDebug("Updated program %s/%s", owner, name)
		return existing, nil
	case !errors.Is(err, ErrProgramNotFound):
		return nil, err
	}

	p := &Program{
		ID:        uuid.New().String(),
		Owner:     owner,
		Name:      name,
		Source:    source,
		CreatedAt: time.Unix(0, now.UnixNano()),
		UpdatedAt: time.Unix(0, now.UnixNano()),
	}
	_, err = s.db.Exec(
		"INSERT INTO programs (id, owner, name, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Owner, p.Name, p.Source, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert program: %w", err)
	}
	logger.StorageDebug("Saved program %s/%s as %s", owner, name, p.ID)
	return p, nil
}

// LoadProgram returns the program (owner, name) including its source.
func (s *Store) LoadProgram(owner, name string) (*Program, error) {
	var p Program
	var created, updated int64
	err := s.db.QueryRow(
		"SELECT id, owner, name, source, created_at, updated_at FROM programs WHERE owner = ? AND name = ?",
		owner, name).Scan(&p.ID, &p.Owner, &p.Name, &p.Source, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrProgramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return &p, nil
}

// ListPrograms returns the owner's programs without source, sorted by name.
func (s *Store) ListPrograms(owner string) ([]Program, error) {
	rows, err := s.db.Query(
		"SELECT id, owner, name, created_at, updated_at FROM programs WHERE owner = ? ORDER BY name",
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		var p Program
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Owner, &p.Name, &created, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(0, created)
		p.UpdatedAt = time.Unix(0, updated)
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// DeleteProgram removes (owner, name).
func (s *Store) DeleteProgram(owner, name string) error {
	res, err := s.db.Exec("DELETE FROM programs WHERE owner = ? AND name = ?", owner, name)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProgramNotFound
	}
	logger.StorageDebug("Deleted program %s/%s", owner, name)
	return nil
}
