// Package view composes the listing store, the filter engine and the pager
// into what a front end renders: tabs, cards, page controls and the loading,
// error and empty states.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gigboard/internal/filter"
	"gigboard/internal/gateway"
	"gigboard/internal/model"
	"gigboard/internal/pager"
	"gigboard/internal/store"
)

// ErrBusy is returned when a mutation is requested while another one from
// the same view is still in flight.
var ErrBusy = errors.New("another change is still being saved")

// Defaults.
const (
	DefaultPageSize      = 6
	DefaultDebounce      = 300 * time.Millisecond
	DefaultFeaturedCount = 3
)

// Tab selects listings by status.
type Tab string

// TabAll shows every status.
const TabAll Tab = "all"

// Tabs lists the tabs in display order.
var Tabs = []Tab{
	TabAll,
	Tab(model.StatusPending),
	Tab(model.StatusOpen),
	Tab(model.StatusInProgress),
	Tab(model.StatusCompleted),
	Tab(model.StatusCancelled),
}

// ParseTab converts user input into a Tab.
func ParseTab(s string) (Tab, error) {
	if s == "" || s == string(TabAll) {
		return TabAll, nil
	}
	st, err := model.ParseStatus(s)
	if err != nil {
		return "", fmt.Errorf("invalid tab %q", s)
	}
	return Tab(st), nil
}

// Label returns the display name of t.
func (t Tab) Label() string {
	if t == TabAll {
		return "All Gigs"
	}
	return model.Status(t).Label()
}

func (t Tab) filter() filter.StatusFilter {
	if t == TabAll {
		return filter.StatusAll
	}
	return filter.ForStatus(model.Status(t))
}

// Options configures a View.
type Options struct {
	PageSize      int
	Debounce      time.Duration
	FeaturedCount int
	Logger        *slog.Logger
}

// View is the presentation controller of one listing screen. It owns the
// filter state and drives one store.
type View struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	base      context.Context
	filter    filter.State
	loadedKey filter.ServerKey
	loaded    bool
	timer     *time.Timer
	timerGen  uint64
	busy      bool
	hooks     []func(Page)
}

// New creates a View over s. Debounce may be zero to load on every keystroke.
func New(s *store.Store, opts Options) *View {
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.FeaturedCount < 1 {
		opts.FeaturedCount = DefaultFeaturedCount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	v := &View{
		store:  s,
		opts:   opts,
		logger: opts.Logger.With("scope", s.Scope().Key()),
		base:   context.Background(),
		filter: filter.Default(opts.PageSize),
	}
	s.Subscribe(func(store.State) { v.emit() })
	return v
}

// OnChange registers fn to receive the rendered page after every settled
// load and every client-side change.
func (v *View) OnChange(fn func(Page)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hooks = append(v.hooks, fn)
}

func (v *View) emit() {
	v.mu.Lock()
	hooks := append([]func(Page){}, v.hooks...)
	v.mu.Unlock()
	if len(hooks) == 0 {
		return
	}
	p := v.Render()
	for _, fn := range hooks {
		fn(p)
	}
}

// Filter returns the current filter state.
func (v *View) Filter() filter.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Store returns the underlying store.
func (v *View) Store() *store.Store { return v.store }

// Mount primes the store from its snapshot and loads the current filter.
// ctx is also used for debounced loads until the next Mount.
func (v *View) Mount(ctx context.Context) {
	v.mu.Lock()
	v.base = ctx
	v.mu.Unlock()
	v.store.Prime(ctx)
	v.load(ctx)
}

// Close stops a pending debounced load.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timerGen++
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *View) load(ctx context.Context) {
	v.mu.Lock()
	f := v.filter
	v.loadedKey = f.ServerKey()
	v.loaded = true
	v.mu.Unlock()
	v.store.Load(ctx, f)
}

// update applies change and reloads when a server-side criterion moved.
// Client-side changes only re-render.
func (v *View) update(ctx context.Context, change func(filter.State) filter.State) {
	v.mu.Lock()
	v.filter = change(v.filter)
	reload := !v.loaded || v.filter.ServerKey() != v.loadedKey
	v.mu.Unlock()
	if reload {
		v.load(ctx)
		return
	}
	v.emit()
}

// SetSearch changes the search term. The load is debounced: only the last
// term typed within the window reaches the server.
func (v *View) SetSearch(term string) {
	v.mu.Lock()
	v.filter = v.filter.WithSearch(term)
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.timerGen++
	gen := v.timerGen
	if v.opts.Debounce == 0 {
		v.mu.Unlock()
		v.flushSearch(gen)
		return
	}
	v.timer = time.AfterFunc(v.opts.Debounce, func() { v.flushSearch(gen) })
	v.mu.Unlock()
}

// flushSearch runs the debounced load of timer generation gen. A callback
// that fired after a newer SetSearch or Close does nothing.
func (v *View) flushSearch(gen uint64) {
	v.mu.Lock()
	if gen != v.timerGen {
		v.mu.Unlock()
		return
	}
	v.timer = nil
	ctx := v.base
	stale := !v.loaded || v.filter.ServerKey() != v.loadedKey
	v.mu.Unlock()
	if stale {
		v.load(ctx)
		return
	}
	v.emit()
}

// SetCategory selects a category; 0 selects all.
func (v *View) SetCategory(ctx context.Context, id int64) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithCategory(id) })
}

// SetPrice sets the budget range.
func (v *View) SetPrice(ctx context.Context, r filter.PriceRange) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithPrice(r) })
}

// SetBudgetPeriod selects a budget period; "" selects any.
func (v *View) SetBudgetPeriod(ctx context.Context, p model.BudgetPeriod) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithBudgetPeriod(p) })
}

// SelectTab switches the status tab.
func (v *View) SelectTab(ctx context.Context, t Tab) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithStatus(t.filter()) })
}

// SetLocationType narrows to online or on-site listings.
func (v *View) SetLocationType(ctx context.Context, t filter.LocationType) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithLocationType(t) })
}

// SetLocation sets the reference location for the near-me match; "" clears it.
func (v *View) SetLocation(ctx context.Context, loc string) {
	v.update(ctx, func(f filter.State) filter.State { return f.WithLocation(loc) })
}

// Reset restores every criterion to its default.
func (v *View) Reset(ctx context.Context) {
	v.Close()
	v.update(ctx, func(f filter.State) filter.State { return filter.Default(f.PageSize) })
}

// GoToPage moves to page n, clamped to the pages available.
func (v *View) GoToPage(n int) {
	v.mu.Lock()
	total := pager.TotalPages(len(v.visible(v.filter)), v.filter.PageSize)
	v.filter = v.filter.WithPage(pager.Clamp(n, total))
	v.mu.Unlock()
	v.emit()
}

// NextPage moves one page forward if possible.
func (v *View) NextPage() { v.GoToPage(v.Filter().Page + 1) }

// PrevPage moves one page back if possible.
func (v *View) PrevPage() { v.GoToPage(v.Filter().Page - 1) }

// visible returns the records f lets through on the client side.
func (v *View) visible(f filter.State) []model.Listing {
	return filter.ApplyClient(v.store.State().Records, f)
}

// Act runs a card action on listing id. Actions the listing's status does not
// offer are refused before any request is made. A listing missing from the
// cache triggers a refresh before it is reported as not found.
func (v *View) Act(ctx context.Context, id int64, a model.Action) (*model.Listing, error) {
	l, ok := v.store.Get(id)
	if !ok {
		v.store.Refresh(ctx)
		if l, ok = v.store.Get(id); !ok {
			return nil, &gateway.NotFoundError{ID: id}
		}
	}
	if !l.Status.Allows(a) {
		return nil, fmt.Errorf("%s listing %d: %w", a, id, model.ErrActionNotAllowed)
	}
	var m store.Mutation
	switch a {
	case model.ActionDelete:
		m = store.Delete(id)
	case model.ActionPublish, model.ActionUnpublish:
		m = store.Transition(id, a)
	default:
		return nil, fmt.Errorf("%s listing %d: %w", a, id, model.ErrActionNotAllowed)
	}
	return v.mutate(ctx, m)
}

// Create adds a listing.
func (v *View) Create(ctx context.Context, d model.Draft) (*model.Listing, error) {
	return v.mutate(ctx, store.Create(d))
}

// Edit applies p to listing id.
func (v *View) Edit(ctx context.Context, id int64, p model.Patch) (*model.Listing, error) {
	if l, ok := v.store.Get(id); ok && !l.Status.Allows(model.ActionEdit) {
		return nil, fmt.Errorf("edit listing %d: %w", id, model.ErrActionNotAllowed)
	}
	return v.mutate(ctx, store.Update(id, p))
}

// Apply sends a tutor's proposal for listing id. A cached listing that is
// not open is rejected locally; anything else is left to the server.
func (v *View) Apply(ctx context.Context, id int64, proposal string) error {
	if l, ok := v.store.Get(id); ok && l.Status != model.StatusOpen {
		return fmt.Errorf("apply to listing %d: %w", id, model.ErrActionNotAllowed)
	}
	_, err := v.mutate(ctx, store.Apply(id, proposal))
	return err
}

func (v *View) mutate(ctx context.Context, m store.Mutation) (*model.Listing, error) {
	v.mu.Lock()
	if v.busy {
		v.mu.Unlock()
		return nil, ErrBusy
	}
	v.busy = true
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.busy = false
		v.mu.Unlock()
	}()

	l, err := v.store.Mutate(ctx, m)
	if err != nil {
		v.logger.Debug("mutation rejected", "op", m.Op, "id", m.ID, "error", err)
		return nil, err
	}
	return l, nil
}
