package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is the recorded transcript of one program execution.
type Run struct {
	ID         string        `json:"id"`
	ProgramID  string        `json:"program_id,omitempty"`
	Owner      string        `json:"owner"`
	Source     string        `json:"source"`
	Transcript string        `json:"transcript"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// RecordRun stores r, assigning an ID if it has none.
func (s *Store) RecordRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	var programID, errText sql.NullString
	if r.ProgramID != "" {
		programID = sql.NullString{String: r.ProgramID, Valid: true}
	}
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, program_id, owner, source, transcript, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, programID, r.Owner, r.Source, r.Transcript, errText,
		r.StartedAt.UnixNano(), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the owner's most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(owner string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, program_id, owner, source, transcript, error, started_at, duration_ms
		 FROM runs WHERE owner = ? ORDER BY started_at DESC LIMIT ?`,
		owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var programID, errText sql.NullString
		var started, durationMS int64
		if err := rows.Scan(&r.ID, &programID, &r.Owner, &r.Source, &r.Transcript, &errText, &started, &durationMS); err != nil {
			return nil, err
		}
		r.ProgramID = programID.String
		r.Error = errText.String
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
