// Package storage provides the durable topic store behind the ledger.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrLocked means another invocation holds the store's file lock.
	ErrLocked = errors.New("ledger store is locked (is another run in progress?)")
	// ErrUnsupported is returned for an unknown storage type.
	ErrUnsupported = errors.New("unsupported storage type")
)

// TopicRecord is one ledger entry.
type TopicRecord struct {
	Key        string    `json:"key"`
	Topic      string    `json:"topic"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store persists used topics keyed by their normalized form.
type Store interface {
	Close() error
	HasTopic(key string) (bool, error)
	PutTopic(rec TopicRecord) error
	RecentTopics(limit int) ([]TopicRecord, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	// TopicTTL expires entries after the given age. Zero keeps them forever.
	TopicTTL        time.Duration
	CleanupInterval time.Duration
	// LockTimeout bounds how long Open waits for the file lock held by
	// another running invocation.
	LockTimeout time.Duration
}

const (
	defaultCleanupInterval = 12 * time.Hour
	defaultLockTimeout     = time.Second
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "memory":
		return NewMemoryStore(), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openSQLite(path, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupported, typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.TopicTTL < 0 {
		opts.TopicTTL = 0
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	return opts
}

// expired reports whether a record is past the configured TTL.
func expired(rec TopicRecord, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || rec.RecordedAt.IsZero() {
		return false
	}
	return !rec.RecordedAt.Add(ttl).After(now)
}

type noopStore struct{}

func (noopStore) Close() error                            { return nil }
func (noopStore) HasTopic(string) (bool, error)           { return false, nil }
func (noopStore) PutTopic(TopicRecord) error              { return nil }
func (noopStore) RecentTopics(int) ([]TopicRecord, error) { return nil, nil }
