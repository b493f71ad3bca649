package lookup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/prowler/internal/boundary"
	"github.com/kalambet/prowler/internal/history"
	"github.com/kalambet/prowler/internal/postcode"
)

// Phase is the orchestrator's position in the search lifecycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

const (
	NotFoundMessage = "No matches found for the entered postcode."
	GenericMessage  = "An unexpected error occurred. Please try again."
)

// ErrSuperseded is returned by Search when a newer search or a history
// selection replaced it before it finished.
var ErrSuperseded = errors.New("superseded by a newer search")

// State is a snapshot of everything a presenter needs.
type State struct {
	Phase     Phase                  `json:"phase"`
	Loading   bool                   `json:"loading"`
	Result    *postcode.LookupResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	History   []history.Entry        `json:"history"`
	Query     string                 `json:"query,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Seq       uint64                 `json:"seq"`
}

// Lookuper performs the primary postcode lookup.
type Lookuper interface {
	Lookup(ctx context.Context, pc string) (postcode.LookupResult, error)
}

// BoundaryFetcher returns district geometry, or nil when none is available.
type BoundaryFetcher interface {
	FetchBoundary(ctx context.Context, districtName string) *boundary.FeatureCollection
}

// HistoryStore holds the remembered lookups. Add must not do I/O; Persist
// is called outside the state lock.
type HistoryStore interface {
	Load() []history.Entry
	Add(entry history.Entry, current []history.Entry) []history.Entry
	Persist(entries []history.Entry)
}

// Recorder observes completed searches. outcome is "success", "not_found",
// "error" or "stale".
type Recorder interface {
	SearchCompleted(outcome string, elapsed time.Duration)
}

// Orchestrator drives searches and owns the presentation state.
type Orchestrator struct {
	lookup   Lookuper
	boundary BoundaryFetcher
	history  HistoryStore
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  State
	latest uint64
	subs   map[int]func(State)
	nextID int

	// persistMu is taken before mu is released so history writes land in
	// the order their lists were committed.
	persistMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a search-outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator in the idle phase with history already loaded.
func New(l Lookuper, b BoundaryFetcher, h HistoryStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		lookup:   l,
		boundary: b,
		history:  h,
		logger:   slog.Default(),
		now:      time.Now,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state = State{Phase: PhaseIdle, History: h.Load()}
	return o
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe registers fn to receive a copy of every state change. The
// returned function removes the subscription.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Search runs one lookup to completion and returns the state it produced.
// The search keeps running even if ctx is cancelled, so a started lookup
// always reaches success or error. If a newer search or a selection takes
// over meanwhile, this one's outcome is dropped and Search returns the
// current state with ErrSuperseded.
func (o *Orchestrator) Search(ctx context.Context, pc string) (State, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	reqID := uuid.NewString()

	o.mu.Lock()
	o.latest++
	seq := o.latest
	o.state = State{
		Phase:     PhaseLoading,
		Loading:   true,
		History:   o.state.History,
		Query:     pc,
		RequestID: reqID,
		Seq:       seq,
	}
	st, subs := o.snapshotLocked()
	o.mu.Unlock()
	notify(st, subs)

	log := o.logger.With("request_id", reqID, "postcode", pc)
	log.Debug("lookup: search started", "seq", seq)

	result, err := o.lookup.Lookup(ctx, pc)
	if err != nil {
		log.Error("lookup: primary request failed", "error", err)
		return o.fail(seq, errorMessage(err), "error", started, log)
	}
	if !result.Found() {
		msg := result.FailureMessage()
		if msg == "" {
			msg = NotFoundMessage
		}
		log.Info("lookup: no match", "status", result.Status)
		return o.fail(seq, msg, "not_found", started, log)
	}

	if district := result.District(); district != "" {
		if fc := o.boundary.FetchBoundary(ctx, district); fc != nil {
			result = result.WithBoundary(fc)
		} else {
			log.Warn("lookup: continuing without boundary", "district", district)
		}
	}

	o.mu.Lock()
	if seq != o.latest {
		current := o.state.clone()
		o.mu.Unlock()
		log.Debug("lookup: discarding stale result", "seq", seq)
		o.observe("stale", started)
		return current, ErrSuperseded
	}
	entry := history.Entry{Postcode: pc, Timestamp: o.timestampLocked(), Data: result}
	next := o.history.Add(entry, o.state.History)
	o.state.Phase = PhaseSuccess
	o.state.Loading = false
	o.state.Result = &result
	o.state.Error = ""
	o.state.History = next
	st, subs = o.snapshotLocked()
	o.persistMu.Lock()
	o.mu.Unlock()

	o.history.Persist(next)
	o.persistMu.Unlock()

	notify(st, subs)
	o.observe("success", started)
	log.Info("lookup: search succeeded", "district", result.District(), "boundary", result.APIData != nil && result.APIData.DistrictBoundary != nil)
	return st, nil
}

// SelectHistoryEntry makes entry's snapshot the active result. No network
// call is made and history is not rewritten.
func (o *Orchestrator) SelectHistoryEntry(entry history.Entry) State {
	o.mu.Lock()
	// A pending search must not overwrite the selection.
	o.latest++
	data := entry.Data
	o.state.Phase = PhaseSuccess
	o.state.Loading = false
	o.state.Result = &data
	o.state.Error = ""
	o.state.Query = entry.Postcode
	o.state.RequestID = ""
	o.state.Seq = o.latest
	st, subs := o.snapshotLocked()
	o.mu.Unlock()

	notify(st, subs)
	return st
}

func (o *Orchestrator) fail(seq uint64, msg, outcome string, started time.Time, log *slog.Logger) (State, error) {
	o.mu.Lock()
	if seq != o.latest {
		current := o.state.clone()
		o.mu.Unlock()
		log.Debug("lookup: discarding stale failure", "seq", seq)
		o.observe("stale", started)
		return current, ErrSuperseded
	}
	o.state.Phase = PhaseError
	o.state.Loading = false
	o.state.Result = nil
	o.state.Error = msg
	st, subs := o.snapshotLocked()
	o.mu.Unlock()

	notify(st, subs)
	o.observe(outcome, started)
	return st, nil
}

// timestampLocked returns now in milliseconds, bumped past the newest
// history entry so timestamps strictly increase per insertion.
func (o *Orchestrator) timestampLocked() int64 {
	ts := o.now().UnixMilli()
	if len(o.state.History) > 0 && ts <= o.state.History[0].Timestamp {
		ts = o.state.History[0].Timestamp + 1
	}
	return ts
}

// snapshotLocked copies the state and the subscriber list so callbacks can
// run after the lock is released.
func (o *Orchestrator) snapshotLocked() (State, []func(State)) {
	subs := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	return o.state.clone(), subs
}

func notify(st State, subs []func(State)) {
	for _, fn := range subs {
		fn(st.clone())
	}
}

func (o *Orchestrator) observe(outcome string, started time.Time) {
	if o.recorder != nil {
		o.recorder.SearchCompleted(outcome, time.Since(started))
	}
}

func (s State) clone() State {
	if s.History != nil {
		h := make([]history.Entry, len(s.History))
		copy(h, s.History)
		s.History = h
	}
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

func errorMessage(err error) string {
	var httpErr *postcode.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericMessage
}
