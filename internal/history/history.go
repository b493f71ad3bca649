package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/prowler/internal/postcode"
	"github.com/kalambet/prowler/internal/storage"
)

const (
	// Key is the state-store key holding the serialized history list.
	Key = "asf_history"

	// MaxEntries caps the stored list; the oldest entries fall off the tail.
	MaxEntries = 20
)

// Entry is one remembered lookup. Data is the result exactly as it was
// shown, including any boundary geometry, so replaying never refetches.
type Entry struct {
	Postcode  string                `json:"postcode"`
	Timestamp int64                 `json:"timestamp"`
	Data      postcode.LookupResult `json:"data"`
}

// KV is the durable key/value surface the store persists through.
type KV interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Recorder is notified of every persist attempt ("ok" or "error").
type Recorder interface {
	HistoryPersist(outcome string)
}

// Store reads and writes the history list under Key.
type Store struct {
	kv       KV
	max      int
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries lowers the list cap. Values outside 1..MaxEntries are
// ignored.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 && n <= MaxEntries {
			s.max = n
		}
	}
}

// WithRecorder attaches a persist-outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store backed by kv.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, max: MaxEntries, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Max returns the configured list cap.
func (s *Store) Max() int { return s.max }

// Load returns the persisted list. A missing, unreadable or corrupt value
// yields an empty list.
func (s *Store) Load() []Entry {
	raw, err := s.kv.GetItem(Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("history: read failed", "error", err)
		}
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("history: stored value is corrupt, starting empty", "error", err)
		return []Entry{}
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

// Save prepends entry to current, persists the result and returns it.
// Persist failures are logged; the returned list is always the new one.
func (s *Store) Save(entry Entry, current []Entry) []Entry {
	next := s.Add(entry, current)
	s.Persist(next)
	return next
}

// Add returns current with entry prepended and the list capped at Max.
// Nothing is written.
func (s *Store) Add(entry Entry, current []Entry) []Entry {
	return Prepend(entry, current, s.max)
}

// Persist writes entries as the stored list. Failures are logged and
// swallowed.
func (s *Store) Persist(entries []Entry) {
	if err := s.persist(entries); err != nil {
		s.logger.Error("history: persist failed", "entries", len(entries), "error", err)
		s.record("error")
		return
	}
	s.record("ok")
}

// Clear removes the persisted list.
func (s *Store) Clear() error {
	if err := s.kv.RemoveItem(Key); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

func (s *Store) persist(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return s.kv.SetItem(Key, string(data))
}

func (s *Store) record(outcome string) {
	if s.recorder != nil {
		s.recorder.HistoryPersist(outcome)
	}
}

// Prepend returns a new list with entry first, any older entry for the same
// postcode removed, truncated to max. current is not modified.
func Prepend(entry Entry, current []Entry, max int) []Entry {
	if max <= 0 {
		max = MaxEntries
	}
	next := make([]Entry, 0, min(len(current)+1, max))
	next = append(next, entry)
	for _, e := range current {
		if len(next) == max {
			break
		}
		if e.Postcode == entry.Postcode {
			continue
		}
		next = append(next, e)
	}
	return next
}

// Suggest returns the entries whose postcode starts with prefix, ignoring
// case, whitespace at the ends and input-mask underscores. An empty prefix
// matches everything.
func Suggest(prefix string, entries []Entry) []Entry {
	p := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(prefix, "_", "")))
	var out []Entry
	for _, e := range entries {
		if strings.HasPrefix(strings.ToUpper(e.Postcode), p) {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry for pc, compared case-insensitively.
func Find(pc string, entries []Entry) (Entry, bool) {
	for _, e := range entries {
		if strings.EqualFold(e.Postcode, strings.TrimSpace(pc)) {
			return e, true
		}
	}
	return Entry{}, false
}
