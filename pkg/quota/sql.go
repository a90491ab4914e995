package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const createQuotaTableSQL = `
CREATE TABLE IF NOT EXISTS quota_usage (
    subject VARCHAR(255) NOT NULL,
    limiter VARCHAR(255) NOT NULL,
    available BIGINT NOT NULL,
    quota_limit BIGINT NOT NULL,
    reset_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (subject, limiter)
);
`

// SQLLimiter persists quota balances in SQLite or PostgreSQL. One row per
// (subject, limiter); the debit is a single atomic UPDATE.
type SQLLimiter struct {
	db      *sql.DB
	dialect string

	name         string
	scope        string
	initialQuota int64
	period       time.Duration
}

// NewSQLLimiter creates a SQL-backed limiter and initializes its schema.
func NewSQLLimiter(db *sql.DB, dialect, name, scope string, initialQuota int64, period time.Duration) (*SQLLimiter, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres)", dialect)
	}

	l := &SQLLimiter{
		db:           db,
		dialect:      dialect,
		name:         name,
		scope:        scope,
		initialQuota: initialQuota,
		period:       period,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createQuotaTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create quota table: %w", err)
	}
	return l, nil
}

// Name implements Limiter.
func (l *SQLLimiter) Name() string { return l.name }

// EnsureAvailable implements Limiter.
func (l *SQLLimiter) EnsureAvailable(ctx context.Context, userID string) error {
	subject := subjectFor(l.scope, userID)
	available, err := l.currentBalance(ctx, subject)
	if err != nil {
		return err
	}
	if available <= 0 {
		return &ExceededError{Limiter: l.name, Subject: subject, Available: available}
	}
	return nil
}

// Consume implements Limiter.
func (l *SQLLimiter) Consume(ctx context.Context, userID string, inputTokens, outputTokens int64) error {
	subject := subjectFor(l.scope, userID)
	if _, err := l.currentBalance(ctx, subject); err != nil {
		// Makes sure the row exists and the window is fresh.
		return err
	}

	query := `UPDATE quota_usage SET available = available - ?, updated_at = ? WHERE subject = ? AND limiter = ?`
	if l.dialect == "postgres" {
		query = `UPDATE quota_usage SET available = available - $1, updated_at = $2 WHERE subject = $3 AND limiter = $4`
	}

	_, err := l.db.ExecContext(ctx, query, inputTokens+outputTokens, time.Now().UTC(), subject, l.name)
	if err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	return nil
}

// Available implements Limiter.
func (l *SQLLimiter) Available(ctx context.Context, userID string) (int64, error) {
	return l.currentBalance(ctx, subjectFor(l.scope, userID))
}

// currentBalance reads the subject's balance, inserting a fresh row or
// resetting an expired window as needed.
func (l *SQLLimiter) currentBalance(ctx context.Context, subject string) (int64, error) {
	query := `SELECT available, reset_at FROM quota_usage WHERE subject = ? AND limiter = ?`
	if l.dialect == "postgres" {
		query = `SELECT available, reset_at FROM quota_usage WHERE subject = $1 AND limiter = $2`
	}

	now := time.Now().UTC()

	var available int64
	var resetAt time.Time
	err := l.db.QueryRowContext(ctx, query, subject, l.name).Scan(&available, &resetAt)
	switch {
	case err == sql.ErrNoRows:
		return l.initialQuota, l.insertRow(ctx, subject, now)
	case err != nil:
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}

	if l.period > 0 && now.After(resetAt) {
		update := `UPDATE quota_usage SET available = ?, reset_at = ?, updated_at = ? WHERE subject = ? AND limiter = ?`
		if l.dialect == "postgres" {
			update = `UPDATE quota_usage SET available = $1, reset_at = $2, updated_at = $3 WHERE subject = $4 AND limiter = $5`
		}
		if _, err := l.db.ExecContext(ctx, update, l.initialQuota, now.Add(l.period), now, subject, l.name); err != nil {
			return 0, fmt.Errorf("failed to reset quota window: %w", err)
		}
		return l.initialQuota, nil
	}

	return available, nil
}

func (l *SQLLimiter) insertRow(ctx context.Context, subject string, now time.Time) error {
	insert := `INSERT OR IGNORE INTO quota_usage (subject, limiter, available, quota_limit, reset_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if l.dialect == "postgres" {
		insert = `INSERT INTO quota_usage (subject, limiter, available, quota_limit, reset_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (subject, limiter) DO NOTHING`
	}

	_, err := l.db.ExecContext(ctx, insert, subject, l.name, l.initialQuota, l.initialQuota, now.Add(l.period), now)
	if err != nil {
		return fmt.Errorf("failed to initialize quota row: %w", err)
	}
	return nil
}
