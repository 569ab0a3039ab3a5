package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore implements Store on a single-file SQLite database.
type sqliteStore struct {
	db       *sql.DB
	topicTTL time.Duration
	now      func() time.Time
}

// openSQLite opens (or creates) the ledger database and its schema.
func openSQLite(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, opts.LockTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS topics (
			key         TEXT PRIMARY KEY,
			topic       TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init topics table: %w", err)
	}

	return &sqliteStore{db: db, topicTTL: opts.TopicTTL, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// HasTopic checks whether the key exists and is not expired.
func (s *sqliteStore) HasTopic(key string) (bool, error) {
	var recordedAt int64
	err := s.db.QueryRow(`SELECT recorded_at FROM topics WHERE key = ?`, key).Scan(&recordedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query topic: %w", err)
	}
	rec := TopicRecord{Key: key, RecordedAt: time.UnixMilli(recordedAt)}
	return !expired(rec, s.topicTTL, s.now()), nil
}

// PutTopic upserts the record.
func (s *sqliteStore) PutTopic(rec TopicRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("topic key is empty")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now().UTC()
	}

	query := `
		INSERT INTO topics (key, topic, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET topic = excluded.topic, recorded_at = excluded.recorded_at`
	if _, err := s.db.Exec(query, rec.Key, rec.Topic, rec.RecordedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

// RecentTopics returns up to limit records, newest first.
func (s *sqliteStore) RecentTopics(limit int) ([]TopicRecord, error) {
	query := `SELECT key, topic, recorded_at FROM topics ORDER BY recorded_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent topics: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var out []TopicRecord
	for rows.Next() {
		var (
			rec        TopicRecord
			recordedAt int64
		)
		if err := rows.Scan(&rec.Key, &rec.Topic, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		rec.RecordedAt = time.UnixMilli(recordedAt).UTC()
		if !expired(rec, s.topicTTL, now) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}
