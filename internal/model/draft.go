package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Draft is the payload used to create a listing. Status defaults to pending
// on the server when omitted.
type Draft struct {
	CategoryID   int64        `json:"category_id,omitempty" validate:"gte=0"`
	Title        string       `json:"title" validate:"required,max=255"`
	Description  string       `json:"description" validate:"max=5000"`
	Budget       float64      `json:"budget" validate:"gt=0"`
	Location     string       `json:"location" validate:"max=255"`
	BudgetPeriod BudgetPeriod `json:"budget_period" validate:"required,budget_period"`
	Status       Status       `json:"status,omitempty" validate:"omitempty,listing_status"`
}

// Patch is a partial update. Nil fields are left unchanged on the server.
type Patch struct {
	CategoryID   *int64        `json:"category_id,omitempty" validate:"omitempty,gte=0"`
	Title        *string       `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description  *string       `json:"description,omitempty" validate:"omitempty,max=5000"`
	Budget       *float64      `json:"budget,omitempty" validate:"omitempty,gt=0"`
	Location     *string       `json:"location,omitempty" validate:"omitempty,max=255"`
	BudgetPeriod *BudgetPeriod `json:"budget_period,omitempty" validate:"omitempty,budget_period"`
}

// MinProposalLength is the shortest proposal a tutor may send.
const MinProposalLength = 50

// Proposal is a tutor's application to an open listing.
type Proposal struct {
	Message string `json:"proposal_message" validate:"required,min=50,max=5000"`
}

// Validate checks p and returns per-field messages, or nil when p is valid.
func (p Proposal) Validate() FieldErrors {
	return fieldErrors(validate.Struct(p))
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.CategoryID == nil && p.Title == nil && p.Description == nil &&
		p.Budget == nil && p.Location == nil && p.BudgetPeriod == nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("budget_period", func(fl validator.FieldLevel) bool {
		return BudgetPeriod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("listing_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// FieldErrors maps a JSON field name to its error messages, the same shape the
// backend uses in 422 responses.
type FieldErrors map[string][]string

// Validate checks d and returns per-field messages, or nil when d is valid.
func (d Draft) Validate() FieldErrors {
	return fieldErrors(validate.Struct(d))
}

// Validate checks p and returns per-field messages, or nil when p is valid.
func (p Patch) Validate() FieldErrors {
	return fieldErrors(validate.Struct(p))
}

func fieldErrors(err error) FieldErrors {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"_": {err.Error()}}
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + fe.Field() + " field is required."
	case "gt":
		return "The " + fe.Field() + " must be greater than " + fe.Param() + "."
	case "gte":
		return "The " + fe.Field() + " must be at least " + fe.Param() + "."
	case "min":
		if fe.Param() == "1" {
			return "The " + fe.Field() + " must not be empty."
		}
		return "The " + strings.ReplaceAll(fe.Field(), "_", " ") + " must be at least " + fe.Param() + " characters."
	case "max":
		return "The " + fe.Field() + " may not be longer than " + fe.Param() + " characters."
	case "budget_period":
		return "The budget period must be one of hourly, daily, weekly, monthly."
	case "listing_status":
		return "The selected status is invalid."
	}
	return "The " + fe.Field() + " is invalid."
}
