package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gigboard/internal/model"
)

// NetworkError is a transport failure or timeout. The request may be retried.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response that is not covered by a more specific kind.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error %d", e.Status)
}

// ValidationError is a 422 response, or a draft rejected before sending.
type ValidationError struct {
	Message string
	Fields  model.FieldErrors
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	return "validation failed: " + e.fieldSummary()
}

// First returns the first message for field, or "".
func (e *ValidationError) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *ValidationError) fieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return strings.Join(parts, "; ")
}

// NotFoundError is a 404 on a single-record operation.
type NotFoundError struct {
	ID      int64
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("listing %d not found", e.ID)
}

// InvalidTransitionError means the server rejected publish or unpublish for
// the listing's current status.
type InvalidTransitionError struct {
	ID      int64
	Action  model.Action
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cannot %s listing %d: %s", e.Action, e.ID, e.Message)
	}
	return fmt.Sprintf("cannot %s listing %d", e.Action, e.ID)
}

// AuthError is a 401 or 403: the session token is missing, expired or lacks
// permission.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UserMessage turns err into text suitable for showing to a person.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		netErr   *NetworkError
		valErr   *ValidationError
		nfErr    *NotFoundError
		trErr    *InvalidTransitionError
		authErr  *AuthError
		servErr  *ServerError
		notAllow = errors.Is(err, model.ErrActionNotAllowed)
	)
	switch {
	case errors.As(err, &valErr):
		if len(valErr.Fields) > 0 {
			return valErr.fieldSummary()
		}
		return orDefault(valErr.Message, "Some fields are invalid.")
	case errors.As(err, &nfErr):
		return "Listing not found. It may have been removed."
	case errors.As(err, &trErr):
		return orDefault(trErr.Message, fmt.Sprintf("This listing cannot be %sed right now.", trErr.Action))
	case errors.As(err, &authErr):
		return "Please log in again."
	case errors.As(err, &netErr):
		return "Could not reach the server. Check your connection and try again."
	case errors.As(err, &servErr):
		return orDefault(servErr.Message, "Something went wrong. Please try again later.")
	case notAllow:
		return "That action is not available for this listing."
	}
	return "Something went wrong. Please try again later."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// errorBody is the backend's error shape.
type errorBody struct {
	Message string            `json:"message"`
	Errors  model.FieldErrors `json:"errors"`
}

// classify maps a non-2xx response to the error taxonomy.
func classify(id int64, action model.Action, status int, body errorBody) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Status: status, Message: body.Message}
	case status == http.StatusNotFound && id != 0:
		return &NotFoundError{ID: id, Message: body.Message}
	case action.IsTransition() && (status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		return &InvalidTransitionError{ID: id, Action: action, Message: body.Message}
	case status == http.StatusUnprocessableEntity:
		return &ValidationError{Message: body.Message, Fields: body.Errors}
	}
	return &ServerError{Status: status, Message: body.Message}
}
