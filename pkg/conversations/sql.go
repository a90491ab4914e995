package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const createConversationsTableSQL = `
CREATE TABLE IF NOT EXISTS user_conversations (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    last_used_model VARCHAR(255),
    last_used_provider VARCHAR(255),
    topic_summary TEXT,
    last_message_at TIMESTAMP NOT NULL,
    message_count BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_conversations_user_id ON user_conversations (user_id);
`

// SQLStore keeps ownership rows in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a SQL-backed store and initializes its schema.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres)", dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createConversationsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create user_conversations table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var out []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, convID string) (*UserConversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, last_used_model, last_used_provider, topic_summary, last_message_at, message_count
		 FROM user_conversations WHERE id = ?`), convID)

	var uc UserConversation
	var model, provider, summary sql.NullString
	err := row.Scan(&uc.ID, &uc.UserID, &model, &provider, &summary, &uc.LastMessageAt, &uc.MessageCount)
	switch {
	case err == sql.ErrNoRows:
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to read conversation %s: %w", convID, err)
	}
	uc.LastUsedModel = model.String
	uc.LastUsedProvider = provider.String
	uc.TopicSummary = summary.String
	return &uc, nil
}

// RecordTurn implements Store. The increment runs as a single UPDATE so
// concurrent turns on one conversation never lose a count.
func (s *SQLStore) RecordTurn(ctx context.Context, convID, userID, provider, model, topicSummary string) error {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE user_conversations
		 SET last_used_model = ?, last_used_provider = ?, last_message_at = ?, message_count = message_count + 1
		 WHERE id = ?`), model, provider, now, convID)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", convID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	insert := `INSERT OR IGNORE INTO user_conversations (id, user_id, last_used_model, last_used_provider, topic_summary, last_message_at, message_count)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`
	if s.dialect == "postgres" {
		insert = `INSERT INTO user_conversations (id, user_id, last_used_model, last_used_provider, topic_summary, last_message_at, message_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 1) ON CONFLICT (id) DO NOTHING`
	}
	if _, err := s.db.ExecContext(ctx, insert, convID, userID, model, provider, topicSummary, now); err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", convID, err)
	}
	return nil
}

// SetTopicSummary implements Store. Renames count as activity, so the
// last-message timestamp moves too.
func (s *SQLStore) SetTopicSummary(ctx context.Context, convID, summary string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE user_conversations SET topic_summary = ?, last_message_at = ? WHERE id = ?`),
		summary, time.Now().UTC(), convID)
	if err != nil {
		return fmt.Errorf("failed to set topic summary for %s: %w", convID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, convID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM user_conversations WHERE id = ?`), convID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", convID, err)
	}
	return nil
}

// ListForUser implements Store.
func (s *SQLStore) ListForUser(ctx context.Context, userID string) ([]UserConversation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, last_used_model, last_used_provider, topic_summary, last_message_at, message_count
		 FROM user_conversations WHERE user_id = ? ORDER BY last_message_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []UserConversation
	for rows.Next() {
		var uc UserConversation
		var model, provider, summary sql.NullString
		if err := rows.Scan(&uc.ID, &uc.UserID, &model, &provider, &summary, &uc.LastMessageAt, &uc.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		uc.LastUsedModel = model.String
		uc.LastUsedProvider = provider.String
		uc.TopicSummary = summary.String
		out = append(out, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}
