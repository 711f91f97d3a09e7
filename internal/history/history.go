// Package history keeps a journal of processed merge and convert requests.
package history

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Job is one processed request.
type Job struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	FileCount  int       `json:"file_count"`
	FileNames  []string  `json:"file_names"`
	PageCount  int       `json:"page_count"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// Service records and lists jobs.
type Service struct {
	db *sql.DB
}

// NewService creates a Service over an initialized database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record stores job, filling in ID and CreatedAt when they are zero.
func (s *Service) Record(job *Job) error {
	if job.Operation == "" {
		return fmt.Errorf("job operation cannot be empty")
	}
	if job.ID == "" {
		id, err := generateID()
		if err != nil {
			return err
		}
		job.ID = id
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.FileCount == 0 {
		job.FileCount = len(job.FileNames)
	}

	_, err := s.db.Exec(
		"INSERT INTO jobs (id, operation, file_count, file_names, page_count, success, error, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		job.ID, job.Operation, job.FileCount, strings.Join(job.FileNames, "\n"), job.PageCount, job.Success, job.Error, job.DurationMS, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first. A non-positive limit means
// DefaultLimit; limits above MaxLimit are clamped.
func (s *Service) Recent(limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	rows, err := s.db.Query(
		"SELECT id, operation, file_count, COALESCE(file_names, ''), page_count, success, COALESCE(error, ''), duration_ms, created_at FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Get returns a single job by ID.
func (s *Service) Get(id string) (*Job, error) {
	row := s.db.QueryRow(
		"SELECT id, operation, file_count, COALESCE(file_names, ''), page_count, success, COALESCE(error, ''), duration_ms, created_at FROM jobs WHERE id = ?",
		id,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	return job, err
}

// Prune deletes jobs created before cutoff and returns how many were removed.
func (s *Service) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM jobs WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		j       Job
		names   string
		success int
	)
	if err := sc.Scan(&j.ID, &j.Operation, &j.FileCount, &names, &j.PageCount, &success, &j.Error, &j.DurationMS, &j.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	j.Success = success == 1
	j.FileNames = []string{}
	if names != "" {
		j.FileNames = strings.Split(names, "\n")
	}
	return &j, nil
}

// generateID creates a random hex string for use as a unique identifier.
func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
