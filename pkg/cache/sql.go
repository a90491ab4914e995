package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightspan-ai/gateway/pkg/api"
)

const createCacheTablesSQLite = `
CREATE TABLE IF NOT EXISTS cache (
    user_id VARCHAR(64) NOT NULL,
    conv_id VARCHAR(64) NOT NULL,
    created_at BIGINT NOT NULL,
    started_at VARCHAR(64) NOT NULL,
    completed_at VARCHAR(64) NOT NULL,
    query TEXT NOT NULL,
    response TEXT NOT NULL,
    provider VARCHAR(255),
    model VARCHAR(255),
    referenced_documents TEXT,
    PRIMARY KEY (user_id, conv_id, created_at)
);
CREATE INDEX IF NOT EXISTS idx_cache_created_at ON cache (created_at);
CREATE TABLE IF NOT EXISTS conversations (
    user_id VARCHAR(64) NOT NULL,
    conv_id VARCHAR(64) NOT NULL,
    topic_summary TEXT,
    last_message_timestamp REAL NOT NULL,
    PRIMARY KEY (user_id, conv_id)
);
`

const createCacheTablesPostgres = `
CREATE TABLE IF NOT EXISTS cache (
    user_id VARCHAR(64) NOT NULL,
    conv_id VARCHAR(64) NOT NULL,
    created_at BIGINT NOT NULL,
    started_at VARCHAR(64) NOT NULL,
    completed_at VARCHAR(64) NOT NULL,
    query TEXT NOT NULL,
    response TEXT NOT NULL,
    provider VARCHAR(255),
    model VARCHAR(255),
    referenced_documents JSONB,
    PRIMARY KEY (user_id, conv_id, created_at)
);
CREATE INDEX IF NOT EXISTS idx_cache_created_at ON cache (created_at);
CREATE TABLE IF NOT EXISTS conversations (
    user_id VARCHAR(64) NOT NULL,
    conv_id VARCHAR(64) NOT NULL,
    topic_summary TEXT,
    last_message_timestamp DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (user_id, conv_id)
);
`

// SQLCache stores conversations in SQLite or PostgreSQL. The two dialects
// share every statement except placeholder style and the schema above.
type SQLCache struct {
	db      *sql.DB
	dialect string

	mu          sync.Mutex
	lastCreated int64
}

// NewSQLCache creates a SQL-backed cache and initializes its schema.
func NewSQLCache(db *sql.DB, dialect string) (*SQLCache, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	var schema string
	switch dialect {
	case "sqlite":
		schema = createCacheTablesSQLite
	case "postgres":
		schema = createCacheTablesPostgres
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres)", dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create cache tables: %w", err)
	}
	return &SQLCache{db: db, dialect: dialect}, nil
}

// rebind converts `?` placeholders to `$n` for postgres.
func (c *SQLCache) rebind(query string) string {
	if c.dialect != "postgres" {
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

// nextCreatedAt assigns a strictly increasing insert timestamp so entries in
// one conversation never collide even under concurrent turns.
func (c *SQLCache) nextCreatedAt() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	if now <= c.lastCreated {
		now = c.lastCreated + 1
	}
	c.lastCreated = now
	return now
}

// Get implements Cache.
func (c *SQLCache) Get(ctx context.Context, userID, convID string, skipUserCheck bool) ([]Entry, error) {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT started_at, completed_at, query, response, provider, model, referenced_documents
		 FROM cache WHERE user_id = ? AND conv_id = ? ORDER BY created_at ASC`), userID, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", convID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var provider, model, docs sql.NullString
		if err := rows.Scan(&e.StartedAt, &e.CompletedAt, &e.Query, &e.Response, &provider, &model, &docs); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.Provider = provider.String
		e.Model = model.String
		if docs.Valid && docs.String != "" {
			if err := json.Unmarshal([]byte(docs.String), &e.ReferencedDocuments); err != nil {
				slog.Error("Failed to decode referenced documents, dropping them",
					"conversation_id", convID, "error", err)
				e.ReferencedDocuments = nil
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", convID, err)
	}
	return entries, nil
}

// Insert implements Cache.
func (c *SQLCache) Insert(ctx context.Context, userID, convID string, entry Entry, skipUserCheck bool) error {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return err
	}

	// Empty and missing are stored the same way: NULL. Only a non-empty
	// list serializes to JSON.
	var docs sql.NullString
	if len(entry.ReferencedDocuments) > 0 {
		raw, err := json.Marshal(entry.ReferencedDocuments)
		if err != nil {
			return fmt.Errorf("failed to encode referenced documents: %w", err)
		}
		docs = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, c.rebind(
		`INSERT INTO cache (user_id, conv_id, created_at, started_at, completed_at, query, response, provider, model, referenced_documents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		userID, convID, c.nextCreatedAt(), entry.StartedAt, entry.CompletedAt,
		entry.Query, entry.Response, entry.Provider, entry.Model, docs)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return c.touchConversation(ctx, userID, convID)
}

// Delete implements Cache.
func (c *SQLCache) Delete(ctx context.Context, userID, convID string, skipUserCheck bool) (bool, error) {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return false, err
	}

	res, err := c.db.ExecContext(ctx, c.rebind(
		`DELETE FROM cache WHERE user_id = ? AND conv_id = ?`), userID, convID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation %s: %w", convID, err)
	}
	entriesRemoved, _ := res.RowsAffected()

	if _, err = c.db.ExecContext(ctx, c.rebind(
		`DELETE FROM conversations WHERE user_id = ? AND conv_id = ?`), userID, convID); err != nil {
		return false, fmt.Errorf("failed to delete conversation %s: %w", convID, err)
	}

	// Removing only the metadata row does not count as removing history.
	return entriesRemoved > 0, nil
}

// List implements Cache.
func (c *SQLCache) List(ctx context.Context, userID string, skipUserCheck bool) ([]api.ConversationData, error) {
	if !skipUserCheck {
		if err := validateUser(userID); err != nil {
			return nil, err
		}
	}

	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT conv_id, topic_summary, last_message_timestamp
		 FROM conversations WHERE user_id = ? ORDER BY last_message_timestamp DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []api.ConversationData
	for rows.Next() {
		var cd api.ConversationData
		var summary sql.NullString
		if err := rows.Scan(&cd.ConversationID, &summary, &cd.LastMessageTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if summary.Valid {
			cd.TopicSummary = summary.String
		}
		out = append(out, cd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}

// SetTopicSummary implements Cache.
func (c *SQLCache) SetTopicSummary(ctx context.Context, userID, convID, summary string, skipUserCheck bool) error {
	if err := validateKey(userID, convID, skipUserCheck); err != nil {
		return err
	}

	_, err := c.db.ExecContext(ctx, c.rebind(
		`INSERT INTO conversations (user_id, conv_id, topic_summary, last_message_timestamp)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, conv_id)
		 DO UPDATE SET topic_summary = excluded.topic_summary,
		               last_message_timestamp = excluded.last_message_timestamp`),
		userID, convID, summary, epochSeconds())
	if err != nil {
		return fmt.Errorf("failed to set topic summary: %w", err)
	}
	return nil
}

// touchConversation upserts the conversations row, bumping its last-message
// timestamp and keeping any existing topic summary.
func (c *SQLCache) touchConversation(ctx context.Context, userID, convID string) error {
	_, err := c.db.ExecContext(ctx, c.rebind(
		`INSERT INTO conversations (user_id, conv_id, topic_summary, last_message_timestamp)
		 VALUES (?, ?, NULL, ?)
		 ON CONFLICT (user_id, conv_id)
		 DO UPDATE SET last_message_timestamp = excluded.last_message_timestamp`),
		userID, convID, epochSeconds())
	if err != nil {
		return fmt.Errorf("failed to update conversation metadata: %w", err)
	}
	return nil
}

// Ready implements Cache.
func (c *SQLCache) Ready(ctx context.Context) bool {
	return c.db.PingContext(ctx) == nil
}

// Close implements Cache.
func (c *SQLCache) Close() error { return c.db.Close() }

func epochSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
