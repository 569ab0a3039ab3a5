// Package ledger remembers which topics have already been published.
package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/storage"
)

// DefaultRecent bounds the avoid list handed to the content generator.
const DefaultRecent = 30

// Ledger answers "has this topic been used" and records new ones.
type Ledger struct {
	store      storage.Store
	log        logger.Logger
	similarity float64
	recent     int
	now        func() time.Time
}

// Options tunes near-duplicate detection.
type Options struct {
	// Similarity is the Levenshtein ratio at or above which two topics are
	// considered the same. Zero disables near-duplicate checks.
	Similarity float64
	// Recent is how many past topics Similar compares against.
	Recent int
}

// New builds a Ledger over store.
func New(store storage.Store, log logger.Logger, opts Options) *Ledger {
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Recent <= 0 {
		opts.Recent = DefaultRecent
	}
	return &Ledger{
		store:      store,
		log:        log,
		similarity: opts.Similarity,
		recent:     opts.Recent,
		now:        time.Now,
	}
}

// Contains reports whether topic was recorded before. A store read failure is
// logged and treated as "not contained" so a broken ledger never blocks a run.
func (l *Ledger) Contains(topic string) bool {
	key := domain.NormalizeTopic(topic)
	if key == "" {
		return false
	}
	ok, err := l.store.HasTopic(key)
	if err != nil {
		l.log.WarnObj("ledger read failed, assuming topic is new", "ledger_error", map[string]any{
			"topic": topic,
			"error": err.Error(),
		})
		return false
	}
	return ok
}

// Similar reports whether topic is a near-duplicate of a recent one.
func (l *Ledger) Similar(topic string) bool {
	if l.similarity <= 0 {
		return false
	}
	key := domain.NormalizeTopic(topic)
	if key == "" {
		return false
	}
	recs, err := l.store.RecentTopics(l.recent)
	if err != nil {
		l.log.WarnObj("ledger read failed, skipping similarity check", "ledger_error", map[string]any{
			"topic": topic,
			"error": err.Error(),
		})
		return false
	}
	for _, rec := range recs {
		if Ratio(key, rec.Key) >= l.similarity {
			return true
		}
	}
	return false
}

// Collides is Contains or Similar.
func (l *Ledger) Collides(topic string) bool {
	return l.Contains(topic) || l.Similar(topic)
}

// Record appends topic to the durable store. Recording an already known
// topic overwrites the same entry.
func (l *Ledger) Record(topic string) error {
	key := domain.NormalizeTopic(topic)
	if key == "" {
		return fmt.Errorf("record topic: empty topic")
	}
	rec := storage.TopicRecord{
		Key:        key,
		Topic:      strings.TrimSpace(topic),
		RecordedAt: l.now().UTC(),
	}
	if err := l.store.PutTopic(rec); err != nil {
		return fmt.Errorf("record topic %q: %w", topic, err)
	}
	return nil
}

// Recent returns up to n display topics, newest first. Errors yield an empty list.
func (l *Ledger) Recent(n int) []string {
	if n <= 0 {
		n = l.recent
	}
	recs, err := l.store.RecentTopics(n)
	if err != nil {
		l.log.WarnObj("ledger read failed, no avoid list", "ledger_error", err.Error())
		return nil
	}
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Topic != "" {
			out = append(out, rec.Topic)
		} else {
			out = append(out, rec.Key)
		}
	}
	return out
}

// Ratio is 1 - distance/maxlen over runes; identical strings score 1.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
