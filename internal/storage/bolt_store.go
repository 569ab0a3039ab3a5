package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const topicBucket = "topics"

// boltStore implements a Store backed by BoltDB. bbolt holds an exclusive
// flock on the file while open, which doubles as the advisory lock against
// overlapping invocations.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	topicTTL        time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.LockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open bbolt db: %w", ErrLocked)
		}
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(topicBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		topicTTL:        opts.TopicTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store and releases the file lock.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// HasTopic checks whether the normalized key was recorded and is not expired.
func (b *boltStore) HasTopic(key string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(topicBucket))
		if bucket == nil {
			return fmt.Errorf("topic bucket missing")
		}
		value := bucket.Get([]byte(key))
		if value == nil {
			return nil
		}
		rec, ok := decodeRecord(value)
		exists = ok && !expired(rec, b.topicTTL, now)
		return nil
	})
	return exists, err
}

// PutTopic writes the record under its key; re-recording overwrites.
func (b *boltStore) PutTopic(rec TopicRecord) error {
	if b == nil || b.db == nil {
		return nil
	}
	if rec.Key == "" {
		return fmt.Errorf("topic key is empty")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = b.now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode topic record: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(topicBucket))
		if bucket == nil {
			return fmt.Errorf("topic bucket missing")
		}
		return bucket.Put([]byte(rec.Key), payload)
	})
}

// RecentTopics returns up to limit records, newest first.
func (b *boltStore) RecentTopics(limit int) ([]TopicRecord, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	now := b.now()
	var out []TopicRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(topicBucket))
		if bucket == nil {
			return fmt.Errorf("topic bucket missing")
		}
		return bucket.ForEach(func(_, v []byte) error {
			if rec, ok := decodeRecord(v); ok && !expired(rec, b.topicTTL, now) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// maybeCleanupExpired removes expired topics on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil || b.topicTTL <= 0 {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(topicBucket))
		if bucket == nil {
			return fmt.Errorf("topic bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			rec, ok := decodeRecord(v)
			if !ok || expired(rec, b.topicTTL, now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeRecord decodes a stored topic record.
func decodeRecord(value []byte) (TopicRecord, bool) {
	var rec TopicRecord
	if err := json.Unmarshal(value, &rec); err != nil || rec.Key == "" {
		return TopicRecord{}, false
	}
	return rec, true
}

func sortNewestFirst(recs []TopicRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].RecordedAt.After(recs[j].RecordedAt)
	})
}
