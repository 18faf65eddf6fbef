package view

import (
	"gigboard/internal/filter"
	"gigboard/internal/gateway"
	"gigboard/internal/model"
	"gigboard/internal/pager"
)

// Card is one listing with the controls offered for it.
type Card struct {
	Listing model.Listing
	Actions []model.Action
}

// TabView is one rendered tab. Count is only known for the active tab, or
// for every tab while the all tab is active.
type TabView struct {
	Tab    Tab
	Label  string
	Active bool
	Count  int
	Known  bool
}

// Page is everything a front end needs to draw the listing screen.
type Page struct {
	Filter filter.State
	Tabs   []TabView

	Cards      []Card
	Page       int
	TotalPages int
	Total      int
	ShowPager  bool
	HasPrev    bool
	HasNext    bool

	// Featured is set when no filter is active; FeaturedCards then holds the
	// curated selection.
	Featured      bool
	FeaturedCards []Card
	NearMe        []Card

	Applications int

	// Truncated is set when the server holds more matches (TotalItems) than
	// the Fetched records the store loaded.
	Truncated  bool
	Fetched    int
	TotalItems int

	Loading      bool
	FromSnapshot bool
	Err          error
	ErrMessage   string
	Empty        bool
	EmptyMessage string
}

// Render builds the page for the current store and filter state.
func (v *View) Render() Page {
	st := v.store.State()
	f := v.Filter()

	visible := filter.ApplyClient(st.Records, f)
	pg := pager.Paginate(visible, f.Page, f.PageSize)
	f.Page = pg.Page

	p := Page{
		Filter:       f,
		Tabs:         tabs(f, visible),
		Cards:        cards(pg.Items),
		Page:         pg.Page,
		TotalPages:   pg.TotalPages,
		Total:        len(visible),
		ShowPager:    pg.TotalPages > 1,
		HasPrev:      pg.HasPrev(),
		HasNext:      pg.HasNext(),
		Featured:     filter.IsDefault(f),
		Loading:      st.Loading,
		FromSnapshot: st.FromSnapshot,
		Truncated:    st.Truncated,
		Fetched:      len(st.Records),
		TotalItems:   st.Meta.TotalItems,
		Err:          st.Err,
		ErrMessage:   gateway.UserMessage(st.Err),
	}
	if p.Featured {
		p.FeaturedCards = cards(filter.Featured(st.Records, v.opts.FeaturedCount))
	}
	if f.Location != "" {
		p.NearMe = cards(filter.NearMe(st.Records, f.Location))
	}
	for _, r := range visible {
		p.Applications += r.ApplicationCount
	}
	if len(visible) == 0 && !st.Loading {
		p.Empty = true
		switch {
		case st.Err != nil:
			p.EmptyMessage = "Gigs could not be loaded."
		case p.Featured:
			p.EmptyMessage = "No gigs yet."
		default:
			p.EmptyMessage = "No gigs match your filters."
		}
	}
	return p
}

func cards(records []model.Listing) []Card {
	out := make([]Card, len(records))
	for i, r := range records {
		out[i] = Card{Listing: r, Actions: r.Status.Actions()}
	}
	return out
}

func tabs(f filter.State, visible []model.Listing) []TabView {
	active := TabAll
	if st, ok := f.Status.Status(); ok {
		active = Tab(st)
	}
	counts := make(map[Tab]int, len(Tabs))
	for _, r := range visible {
		counts[Tab(r.Status)]++
	}

	out := make([]TabView, len(Tabs))
	for i, t := range Tabs {
		tv := TabView{Tab: t, Label: t.Label(), Active: t == active}
		switch {
		case t == active:
			tv.Count, tv.Known = len(visible), true
		case active == TabAll:
			tv.Count, tv.Known = counts[t], true
		}
		out[i] = tv
	}
	return out
}
