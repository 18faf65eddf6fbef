// Package store owns the cached listing set of one scope. Loads follow a
// latest-request-wins rule and every successful mutation is followed by a
// refresh instead of an in-place patch.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gigboard/internal/filter"
	"gigboard/internal/gateway"
	"gigboard/internal/metrics"
	"gigboard/internal/model"
	"gigboard/internal/snapshot"
)

// DefaultFetchSize is the per_page used for loads when the scope sets none.
const DefaultFetchSize = 100

// DefaultMaxPages caps the server pages one load follows when the scope
// sets no limit.
const DefaultMaxPages = 10

// countConcurrency bounds the application-count fan-out.
const countConcurrency = 4

// Gateway is the subset of the REST client the store depends on.
type Gateway interface {
	List(ctx context.Context, q gateway.Query) (*gateway.ListResult, error)
	Create(ctx context.Context, d model.Draft) (*model.Listing, error)
	Update(ctx context.Context, id int64, p model.Patch) (*model.Listing, error)
	Delete(ctx context.Context, id int64) error
	Transition(ctx context.Context, id int64, a model.Action) (*model.Listing, error)
	ApplicationCount(ctx context.Context, id int64) (int, error)
	Apply(ctx context.Context, id int64, proposal string) (*model.Application, error)
}

var _ Gateway = (*gateway.Client)(nil)

// Scope names an independent listing set, such as the public open gigs or
// the gigs of one owner.
type Scope struct {
	Name      string
	OwnerID   int64
	Include   []string
	FetchSize int
	// MaxPages caps the server pages followed per load.
	MaxPages int
	// IncludePending also lists pending gigs under the open status filter.
	IncludePending bool
}

// Key identifies the scope in snapshots and metrics.
func (s Scope) Key() string {
	if s.OwnerID > 0 {
		return s.Name + ":" + strconv.FormatInt(s.OwnerID, 10)
	}
	return s.Name
}

// State is a point-in-time copy of the store.
type State struct {
	Records []model.Listing
	Meta    model.PageMeta
	Loading bool
	Err     error
	Filter  filter.State
	// FromSnapshot marks records primed from a snapshot that no load has
	// replaced yet.
	FromSnapshot bool
	// Truncated is set when the server holds more matches than the page cap
	// let the last load fetch.
	Truncated bool
	LoadedAt  time.Time
}

// Store caches the listings of one scope.
type Store struct {
	gw     Gateway
	scope  Scope
	snap   snapshot.Store
	logger *slog.Logger

	mu        sync.Mutex
	seq       uint64
	gen       uint64
	state     State
	index     map[int64]int
	listeners map[int]func(State)
	nextSub   int
}

// New creates a Store. snap may be nil.
func New(gw Gateway, scope Scope, snap snapshot.Store, logger *slog.Logger) *Store {
	if scope.FetchSize < 1 {
		scope.FetchSize = DefaultFetchSize
	}
	if scope.MaxPages < 1 {
		scope.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		gw:        gw,
		scope:     scope,
		snap:      snap,
		logger:    logger.With("scope", scope.Key()),
		index:     map[int64]int{},
		listeners: map[int]func(State){},
	}
}

// Scope returns the scope the store was created for.
func (s *Store) Scope() Scope { return s.scope }

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.Records = slices.Clone(s.state.Records)
	return st
}

// Get returns the cached listing with the given id.
func (s *Store) Get(id int64) (model.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Listing{}, false
	}
	return s.state.Records[i], true
}

// Subscribe registers fn to be called after every settled load or cache
// change. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(st State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Query returns the request a load with f issues.
func (s *Store) Query(f filter.State) gateway.Query {
	return gateway.Query{
		Filter:  f,
		OwnerID: s.scope.OwnerID,
		Include: s.scope.Include,
		Page:    1,
		PerPage: s.scope.FetchSize,

		IncludePending: s.scope.IncludePending,
	}
}

// Load fetches the listings matching f, following server pages up to the
// scope's page cap. Only the most recently issued load is applied; a response
// that arrives after a newer load was issued is dropped. Failures are
// recorded in State.Err and the previous records stay.
func (s *Store) Load(ctx context.Context, f filter.State) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.state.Filter = f
	s.state.Loading = true
	s.mu.Unlock()

	res, err := s.fetch(ctx, f, seq)

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		metrics.StoreLoads.WithLabelValues(s.scope.Key(), metrics.LoadSuperseded).Inc()
		s.logger.Debug("drop superseded load", "seq", seq)
		return
	}
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
		st := s.snapshotLocked()
		s.mu.Unlock()
		metrics.StoreLoads.WithLabelValues(s.scope.Key(), metrics.LoadFailed).Inc()
		s.logger.Warn("load listings", "error", err)
		s.notify(st)
		return
	}
	s.applyLocked(res.records)
	s.state.Meta = res.meta
	s.state.Truncated = res.truncated
	s.state.Err = nil
	s.state.FromSnapshot = false
	s.state.LoadedAt = time.Now()
	st := s.snapshotLocked()
	s.mu.Unlock()

	metrics.StoreLoads.WithLabelValues(s.scope.Key(), metrics.LoadApplied).Inc()
	metrics.StoreRecords.WithLabelValues(s.scope.Key()).Set(float64(len(st.Records)))
	s.logger.Debug("load listings", "seq", seq, "records", len(st.Records), "total", st.Meta.TotalItems)
	if st.Truncated {
		s.logger.Warn("listings truncated", "records", len(st.Records), "total", st.Meta.TotalItems)
	}

	if s.snap != nil {
		if err := s.snap.SaveListings(context.WithoutCancel(ctx), s.scope.Key(), st.Records); err != nil {
			s.logger.Warn("save listing snapshot", "error", err)
		}
	}
	s.notify(st)
}

type fetched struct {
	records   []model.Listing
	meta      model.PageMeta
	truncated bool
}

// fetch requests page after page until the server reports the last one, the
// page cap is hit or a newer load supersedes this one. Records that moved
// between pages while fetching are kept once.
func (s *Store) fetch(ctx context.Context, f filter.State, seq uint64) (fetched, error) {
	q := s.Query(f)
	var out fetched
	seen := map[int64]bool{}
	for {
		res, err := s.gw.List(ctx, q)
		if err != nil {
			return fetched{}, err
		}
		for _, r := range res.Records {
			if !seen[r.ID] {
				seen[r.ID] = true
				out.records = append(out.records, r)
			}
		}
		out.meta = res.Meta
		if len(res.Records) == 0 || res.Meta.CurrentPage >= res.Meta.TotalPages {
			break
		}
		if q.Page >= s.scope.MaxPages {
			out.truncated = true
			break
		}
		if s.superseded(seq) {
			break
		}
		q.Page++
	}
	if out.records == nil {
		out.records = []model.Listing{}
	}
	return out, nil
}

func (s *Store) superseded(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq != s.seq
}

// applyLocked replaces the cache wholesale.
func (s *Store) applyLocked(records []model.Listing) {
	s.gen++
	s.state.Records = slices.Clone(records)
	s.index = make(map[int64]int, len(records))
	for i, r := range s.state.Records {
		s.index[r.ID] = i
	}
}

// Loaded reports whether a load was ever issued, so that Refresh has a
// filter to repeat.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq > 0
}

// Refresh re-issues the last load.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	f := s.state.Filter
	s.mu.Unlock()
	s.Load(ctx, f)
}

// Prime fills an empty cache from the snapshot store. It reports whether
// records were primed. A load that completes first always wins.
func (s *Store) Prime(ctx context.Context) bool {
	if s.snap == nil {
		return false
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	snap, err := s.snap.LoadListings(ctx, s.scope.Key())
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logger.Warn("load listing snapshot", "error", err)
		}
		return false
	}

	s.mu.Lock()
	if s.gen != gen || len(s.state.Records) > 0 {
		s.mu.Unlock()
		return false
	}
	s.applyLocked(snap.Records)
	s.state.FromSnapshot = true
	s.state.LoadedAt = snap.SavedAt
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("primed from snapshot", "records", len(st.Records), "saved_at", snap.SavedAt)
	s.notify(st)
	return true
}

// Op is a single-record mutation kind.
type Op string

// Mutation kinds.
const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpPublish   Op = Op(model.ActionPublish)
	OpUnpublish Op = Op(model.ActionUnpublish)
	OpApply     Op = "apply"
)

// Mutation describes one change to send to the server.
type Mutation struct {
	Op    Op
	ID    int64
	Draft model.Draft
	Patch model.Patch
	// Proposal is the application text for OpApply.
	Proposal string
}

// Create returns a mutation creating a listing from d.
func Create(d model.Draft) Mutation { return Mutation{Op: OpCreate, Draft: d} }

// Update returns a mutation applying p to listing id.
func Update(id int64, p model.Patch) Mutation { return Mutation{Op: OpUpdate, ID: id, Patch: p} }

// Delete returns a mutation removing listing id.
func Delete(id int64) Mutation { return Mutation{Op: OpDelete, ID: id} }

// Transition returns the mutation for a publish or unpublish action.
func Transition(id int64, a model.Action) Mutation { return Mutation{Op: Op(a), ID: id} }

// Apply returns a mutation sending a tutor's proposal for listing id.
func Apply(id int64, proposal string) Mutation {
	return Mutation{Op: OpApply, ID: id, Proposal: proposal}
}

// Mutate sends m to the server and refreshes the cache on success. On
// failure the cache is left untouched and the error is returned, except that
// a not-found error also refreshes to drop the stale record. The returned
// listing is nil for deletes and applications.
func (s *Store) Mutate(ctx context.Context, m Mutation) (*model.Listing, error) {
	l, err := s.send(ctx, m)
	if err != nil {
		s.logger.Info("mutation failed", "op", m.Op, "id", m.ID, "error", err)
		if gateway.IsNotFound(err) {
			s.Refresh(ctx)
		}
		return nil, fmt.Errorf("%s listing: %w", m.Op, err)
	}
	s.logger.Info("mutation applied", "op", m.Op, "id", m.ID)
	s.Refresh(ctx)
	return l, nil
}

func (s *Store) send(ctx context.Context, m Mutation) (*model.Listing, error) {
	switch m.Op {
	case OpCreate:
		return s.gw.Create(ctx, m.Draft)
	case OpUpdate:
		return s.gw.Update(ctx, m.ID, m.Patch)
	case OpDelete:
		return nil, s.gw.Delete(ctx, m.ID)
	case OpPublish, OpUnpublish:
		return s.gw.Transition(ctx, m.ID, model.Action(m.Op))
	case OpApply:
		_, err := s.gw.Apply(ctx, m.ID, m.Proposal)
		return nil, err
	}
	return nil, fmt.Errorf("unknown mutation %q", m.Op)
}

// FillApplicationCounts requests the application count of every cached
// listing, at most four at a time, and patches the results into the cache.
// Counts are dropped if a load replaced the cache meanwhile. Failed requests
// leave the previous count in place and are reported in the returned error.
func (s *Store) FillApplicationCounts(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	ids := make([]int64, len(s.state.Records))
	for i, r := range s.state.Records {
		ids[i] = r.ID
	}
	s.mu.Unlock()

	counts := make([]int, len(ids))
	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			n, err := s.gw.ApplicationCount(gctx, id)
			if err != nil {
				errs[i] = fmt.Errorf("count applications of %d: %w", id, err)
				return nil
			}
			counts[i] = n
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	records := slices.Clone(s.state.Records)
	for i := range records {
		if errs[i] == nil {
			records[i].ApplicationCount = counts[i]
		}
	}
	s.state.Records = records
	st := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(st)
	return errors.Join(errs...)
}
