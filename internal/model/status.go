package model

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a listing.
type Status string

// Listing statuses.
const (
	StatusPending    Status = "pending"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Label returns the human-readable status name.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Action is something a user can do to a listing from its card.
type Action string

// Card actions. Publish and Unpublish are status transitions.
const (
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
)

// ErrActionNotAllowed is returned when an action is not offered for a status.
var ErrActionNotAllowed = errors.New("action not allowed for current status")

type transition struct {
	from, to Status
}

// transitions is the only place the publish/unpublish rules live.
var transitions = map[Action]transition{
	ActionPublish:   {from: StatusPending, to: StatusOpen},
	ActionUnpublish: {from: StatusOpen, to: StatusPending},
}

// IsTransition reports whether a is a status-changing action.
func (a Action) IsTransition() bool {
	_, ok := transitions[a]
	return ok
}

// Next returns the status a transition leads to from s.
func (s Status) Next(a Action) (Status, error) {
	t, ok := transitions[a]
	if !ok || t.from != s {
		return "", fmt.Errorf("%s from %s: %w", a, s, ErrActionNotAllowed)
	}
	return t.to, nil
}

// Allows reports whether the card for a listing in status s offers a.
// Edit and delete are offered from every status.
func (s Status) Allows(a Action) bool {
	switch a {
	case ActionEdit, ActionDelete:
		return true
	}
	t, ok := transitions[a]
	return ok && t.from == s
}

// Actions returns the actions offered for s in display order.
func (s Status) Actions() []Action {
	var out []Action
	for _, a := range []Action{ActionPublish, ActionUnpublish, ActionEdit, ActionDelete} {
		if s.Allows(a) {
			out = append(out, a)
		}
	}
	return out
}
