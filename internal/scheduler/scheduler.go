// Package scheduler keeps listing stores fresh in the background and reports
// listings that appeared since the previous refresh.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gigboard/internal/filter"
	"gigboard/internal/model"
	"gigboard/internal/store"
)

// DefaultInterval is the refresh period used when none is set.
const DefaultInterval = 5 * time.Minute

// Target is a listing set the scheduler refreshes.
type Target interface {
	Refresh(ctx context.Context)
	Loaded() bool
	State() store.State
}

var _ Target = (*store.Store)(nil)

// Notify receives the listings that are new since the previous refresh.
type Notify func(fresh []model.Listing)

type entry struct {
	target Target
	notify Notify
	// seen is nil until the first successful snapshot of ids is taken.
	seen map[int64]struct{}
}

// Scheduler periodically refreshes registered targets.
type Scheduler struct {
	log  *slog.Logger
	tick time.Duration

	mu      sync.Mutex
	nextID  int
	entries map[int]*entry
}

// New creates a Scheduler with the default interval.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:     log,
		tick:    DefaultInterval,
		entries: make(map[int]*entry),
	}
}

// SetTickInterval overrides the default refresh interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Add registers t for periodic refresh. The returned func unregisters it.
func (s *Scheduler) Add(t Target) func() {
	return s.add(&entry{target: t})
}

// Watch registers t like Add and additionally calls fn with the listings
// that show up after each refresh. Listings already cached when Watch is
// called are not reported.
func (s *Scheduler) Watch(t Target, fn Notify) func() {
	e := &entry{target: t, notify: fn}
	if t.Loaded() {
		st := t.State()
		if st.Err == nil && !st.FromSnapshot {
			e.seen = ids(st.Records)
		}
	}
	return s.add(e)
}

func (s *Scheduler) add(e *entry) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.entries[id] = e
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.entries, id)
	}
}

// Len returns the number of registered targets.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run starts the refresh loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *Scheduler) refreshAll(ctx context.Context) {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	refreshed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if s.refresh(ctx, e) {
			refreshed++
		}
	}
	if refreshed > 0 {
		s.log.Debug("revalidated stores", "count", refreshed)
	}
}

// refresh reloads one target and reports whether a request was made.
func (s *Scheduler) refresh(ctx context.Context, e *entry) bool {
	t := e.target
	if !t.Loaded() {
		return false
	}
	if t.State().Loading {
		return false
	}
	t.Refresh(ctx)

	if e.notify == nil {
		return true
	}
	st := t.State()
	if st.Err != nil {
		s.log.Warn("refresh listings", "error", st.Err)
		return true
	}
	visible := filter.ApplyClient(st.Records, st.Filter)

	s.mu.Lock()
	first := e.seen == nil
	var fresh []model.Listing
	if !first {
		for _, l := range visible {
			if _, ok := e.seen[l.ID]; !ok {
				fresh = append(fresh, l)
			}
		}
	}
	e.seen = ids(st.Records)
	s.mu.Unlock()

	if len(fresh) > 0 {
		s.log.Info("new listings", "count", len(fresh))
		e.notify(fresh)
	}
	return true
}

func ids(records []model.Listing) map[int64]struct{} {
	out := make(map[int64]struct{}, len(records))
	for _, r := range records {
		out[r.ID] = struct{}{}
	}
	return out
}
