package filter

import (
	"strings"

	"gigboard/internal/model"
)

// StatusFilter selects listings by status. StatusAll disables the filter.
type StatusFilter string

// StatusAll matches every status.
const StatusAll StatusFilter = "all"

// ForStatus returns the filter for a single status.
func ForStatus(s model.Status) StatusFilter {
	return StatusFilter(s)
}

// Status returns the selected status and false when the filter is StatusAll.
func (f StatusFilter) Status() (model.Status, bool) {
	if f == StatusAll || f == "" {
		return "", false
	}
	return model.Status(f), true
}

// LocationType narrows listings to online or on-site teaching.
type LocationType string

// Location types.
const (
	LocationAll    LocationType = "all"
	LocationOnline LocationType = "online"
	LocationOnsite LocationType = "onsite"
)

// PriceRange is an inclusive budget range.
type PriceRange struct {
	Min float64
	Max float64
}

// DefaultPrice is the initial range. It means "no price restriction".
var DefaultPrice = PriceRange{Min: 0, Max: 100}

// Normalize clamps negatives to zero and swaps a reversed range.
func (r PriceRange) Normalize() PriceRange {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max < 0 {
		r.Max = 0
	}
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

// IsDefault reports whether r is the unrestricted default range.
func (r PriceRange) IsDefault() bool {
	return r == DefaultPrice
}

// Contains reports whether v falls inside the range.
func (r PriceRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// State is the set of user-chosen criteria narrowing the visible listings.
// It is the single source of truth for both server query parameters and
// client-side refinement. Use the With* methods to change a criterion: they
// reset Page to 1.
type State struct {
	Search       string
	CategoryID   int64
	Price        PriceRange
	BudgetPeriod model.BudgetPeriod
	Status       StatusFilter
	LocationType LocationType
	Location     string

	Page     int
	PageSize int
}

// Default returns the initial state for a view with the given page size.
func Default(pageSize int) State {
	if pageSize < 1 {
		pageSize = 1
	}
	return State{
		Price:        DefaultPrice,
		Status:       StatusAll,
		LocationType: LocationAll,
		Page:         1,
		PageSize:     pageSize,
	}
}

// WithSearch sets the search term.
func (s State) WithSearch(term string) State {
	s.Search = term
	return s.reset()
}

// WithCategory sets the category; 0 selects all categories.
func (s State) WithCategory(id int64) State {
	if id < 0 {
		id = 0
	}
	s.CategoryID = id
	return s.reset()
}

// WithPrice sets the budget range.
func (s State) WithPrice(r PriceRange) State {
	s.Price = r.Normalize()
	return s.reset()
}

// WithBudgetPeriod sets the budget period; "" selects any period.
func (s State) WithBudgetPeriod(p model.BudgetPeriod) State {
	s.BudgetPeriod = p
	return s.reset()
}

// WithStatus sets the status filter.
func (s State) WithStatus(f StatusFilter) State {
	if f == "" {
		f = StatusAll
	}
	s.Status = f
	return s.reset()
}

// WithLocationType sets the location type.
func (s State) WithLocationType(t LocationType) State {
	if t == "" {
		t = LocationAll
	}
	s.LocationType = t
	return s.reset()
}

// WithLocation sets the reference location used by the near-me match.
func (s State) WithLocation(loc string) State {
	s.Location = loc
	return s.reset()
}

// WithPage sets the page without touching the criteria. No clamping happens
// here; the pager clamps once the result size is known.
func (s State) WithPage(page int) State {
	s.Page = page
	return s
}

func (s State) reset() State {
	s.Page = 1
	return s
}

// ServerKey identifies the criteria sent to the server. Two states with the
// same key produce the same request.
type ServerKey struct {
	Search       string
	CategoryID   int64
	Price        PriceRange
	BudgetPeriod model.BudgetPeriod
	Status       StatusFilter
}

// ServerKey returns the server-side part of s.
func (s State) ServerKey() ServerKey {
	return ServerKey{
		Search:       strings.TrimSpace(s.Search),
		CategoryID:   s.CategoryID,
		Price:        s.Price,
		BudgetPeriod: s.BudgetPeriod,
		Status:       s.Status,
	}
}
