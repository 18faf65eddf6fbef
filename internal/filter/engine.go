// Package filter holds the listing filter state and the client-side matching
// engine. Search, category, price, budget period and status are applied by
// the server; location refinement and the featured selection happen here.
package filter

import (
	"sort"
	"strings"

	"gigboard/internal/model"
)

// IsDefault reports whether every criterion of s equals its initial value.
// A default state shows the curated featured view instead of filtered results.
// Page and PageSize are not criteria and are ignored.
func IsDefault(s State) bool {
	return s.Search == "" &&
		s.CategoryID == 0 &&
		s.Price == DefaultPrice &&
		s.BudgetPeriod == "" &&
		(s.Status == StatusAll || s.Status == "") &&
		(s.LocationType == LocationAll || s.LocationType == "") &&
		s.Location == ""
}

// ApplyClient applies the dimensions not delegated to the server and returns
// the matching records in their original order.
func ApplyClient(records []model.Listing, s State) []model.Listing {
	out := make([]model.Listing, 0, len(records))
	for _, r := range records {
		if !matchesLocationType(r, s.LocationType) {
			continue
		}
		if s.Location != "" && !MatchesLocation(r, s.Location) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchesLocation reports whether the trimmed reference location is contained
// in the listing's location, ignoring case. An empty reference never matches.
func MatchesLocation(r model.Listing, ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return false
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(r.Location)), ref)
}

// NearMe returns the listings whose location matches ref.
func NearMe(records []model.Listing, ref string) []model.Listing {
	var out []model.Listing
	for _, r := range records {
		if MatchesLocation(r, ref) {
			out = append(out, r)
		}
	}
	return out
}

// Featured returns at most n open listings, newest first.
func Featured(records []model.Listing, n int) []model.Listing {
	var open []model.Listing
	for _, r := range records {
		if r.Status == model.StatusOpen {
			open = append(open, r)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].CreatedAt.After(open[j].CreatedAt)
	})
	if n >= 0 && len(open) > n {
		open = open[:n]
	}
	return open
}

// MatchesSearch reports whether term appears in the title, description or
// category name, ignoring case. An empty term matches everything.
func MatchesSearch(r model.Listing, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, text := range []string{r.Title, r.Description, r.CategoryName()} {
		if strings.Contains(strings.ToLower(text), term) {
			return true
		}
	}
	return false
}

func matchesLocationType(r model.Listing, t LocationType) bool {
	online := strings.Contains(strings.ToLower(r.Location), "online")
	switch t {
	case LocationOnline:
		return online
	case LocationOnsite:
		return !online
	default:
		return true
	}
}
