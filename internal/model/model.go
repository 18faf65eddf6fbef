// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// BudgetPeriod is the billing period a listing's budget refers to.
type BudgetPeriod string

// Supported budget periods.
const (
	PeriodHourly  BudgetPeriod = "hourly"
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
)

// Valid reports whether p is one of the known periods.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodHourly, PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// ParseBudgetPeriod converts user input into a BudgetPeriod.
func ParseBudgetPeriod(s string) (BudgetPeriod, error) {
	p := BudgetPeriod(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid budget period %q, use: hourly, daily, weekly, monthly", s)
	}
	return p, nil
}

// Unit returns the singular time unit, e.g. "hour" for hourly.
func (p BudgetPeriod) Unit() string {
	switch p {
	case PeriodHourly:
		return "hour"
	case PeriodDaily:
		return "day"
	case PeriodWeekly:
		return "week"
	case PeriodMonthly:
		return "month"
	}
	return string(p)
}

// Amount is a non-negative money value. The backend sends it either as a JSON
// number or as a numeric string.
type Amount float64

// UnmarshalJSON accepts 2000, 2000.5 and "2000.00".
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*a = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(v)
	return nil
}

// String formats the amount rounded to whole CFA francs with thousands
// separators, e.g. "CFA 1,500".
func (a Amount) String() string {
	return "CFA " + humanize.Comma(int64(math.Round(float64(a))))
}

// Category groups listings by subject.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Owner is the learner who posted a listing.
type Owner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Application is a tutor's application against a listing, as embedded by the
// backend when the "applications" relation is included.
type Application struct {
	ID              int64  `json:"id"`
	GigID           int64  `json:"gig_id,omitempty"`
	ProposalMessage string `json:"proposal_message,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// Listing is a learner-posted request for tutoring (a "gig").
type Listing struct {
	ID               int64         `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Budget           Amount        `json:"budget"`
	BudgetPeriod     BudgetPeriod  `json:"budget_period"`
	Location         string        `json:"location"`
	Status           Status        `json:"status"`
	CategoryID       int64         `json:"category_id,omitempty"`
	Category         *Category     `json:"category,omitempty"`
	OwnerID          int64         `json:"learner_id,omitempty"`
	Owner            *Owner        `json:"learner,omitempty"`
	Applications     []Application `json:"applications,omitempty"`
	ApplicationCount int           `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// UnmarshalJSON decodes a listing and derives ApplicationCount from the
// embedded applications when present.
func (l *Listing) UnmarshalJSON(data []byte) error {
	type alias Listing
	var raw struct {
		alias
		CreatedAt flexTime `json:"created_at"`
		UpdatedAt flexTime `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Listing(raw.alias)
	l.CreatedAt = time.Time(raw.CreatedAt)
	l.UpdatedAt = time.Time(raw.UpdatedAt)
	if l.CategoryID == 0 && l.Category != nil {
		l.CategoryID = l.Category.ID
	}
	if l.OwnerID == 0 && l.Owner != nil {
		l.OwnerID = l.Owner.ID
	}
	l.ApplicationCount = len(l.Applications)
	return nil
}

// CategoryName returns the category name or "" when the listing has none.
func (l Listing) CategoryName() string {
	if l.Category == nil {
		return ""
	}
	return l.Category.Name
}

// PageMeta describes the server-side page a list response belongs to.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	PerPage     int `json:"per_page"`
	TotalItems  int `json:"total_items"`
}

// flexTime parses the timestamp layouts the backend emits.
type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = flexTime(time.Time{})
		return nil
	}
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = flexTime(v)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
