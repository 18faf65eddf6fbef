package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStatusActions(t *testing.T) {
	tests := []struct {
		status Status
		want   []Action
	}{
		{status: StatusPending, want: []Action{ActionPublish, ActionEdit, ActionDelete}},
		{status: StatusOpen, want: []Action{ActionUnpublish, ActionEdit, ActionDelete}},
		{status: StatusInProgress, want: []Action{ActionEdit, ActionDelete}},
		{status: StatusCompleted, want: []Action{ActionEdit, ActionDelete}},
		{status: StatusCancelled, want: []Action{ActionEdit, ActionDelete}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.status.Actions()); diff != "" {
				t.Errorf("Actions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatusNext(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		action  Action
		want    Status
		wantErr bool
	}{
		{name: "publish pending", from: StatusPending, action: ActionPublish, want: StatusOpen},
		{name: "unpublish open", from: StatusOpen, action: ActionUnpublish, want: StatusPending},
		{name: "publish open", from: StatusOpen, action: ActionPublish, wantErr: true},
		{name: "unpublish pending", from: StatusPending, action: ActionUnpublish, wantErr: true},
		{name: "publish completed", from: StatusCompleted, action: ActionPublish, wantErr: true},
		{name: "delete is not a transition", from: StatusOpen, action: ActionDelete, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Next(tt.action)
			if tt.wantErr {
				if !errors.Is(err, ErrActionNotAllowed) {
					t.Fatalf("expected ErrActionNotAllowed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Next() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListingUnmarshal(t *testing.T) {
	body := `{
		"id": 7,
		"title": "Calculus help",
		"description": "Weekly sessions",
		"budget": "2000.00",
		"budget_period": "hourly",
		"location": "Buea, Cameroon",
		"status": "open",
		"category": {"id": 5, "name": "Mathematics"},
		"learner": {"id": 3, "name": "Ada", "email": "ada@example.com"},
		"applications": [{"id": 1, "status": "pending"}, {"id": 2, "status": "accepted"}],
		"created_at": "2025-01-02T10:00:00.000000Z",
		"updated_at": "2025-01-03 11:30:00"
	}`

	var got Listing
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := Listing{
		ID:           7,
		Title:        "Calculus help",
		Description:  "Weekly sessions",
		Budget:       2000,
		BudgetPeriod: PeriodHourly,
		Location:     "Buea, Cameroon",
		Status:       StatusOpen,
		CategoryID:   5,
		Category:     &Category{ID: 5, Name: "Mathematics"},
		OwnerID:      3,
		Owner:        &Owner{ID: 3, Name: "Ada", Email: "ada@example.com"},
		Applications: []Application{
			{ID: 1, Status: "pending"},
			{ID: 2, Status: "accepted"},
		},
		ApplicationCount: 2,
		CreatedAt:        time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 1, 3, 11, 30, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Listing mismatch (-want +got):\n%s", diff)
	}
}

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Amount
		wantErr bool
	}{
		{name: "number", in: `1500`, want: 1500},
		{name: "fraction", in: `99.5`, want: 99.5},
		{name: "numeric string", in: `"2000.00"`, want: 2000},
		{name: "null", in: `null`, want: 0},
		{name: "garbage", in: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Amount
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Amount mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDraftValidate(t *testing.T) {
	valid := Draft{
		CategoryID:   5,
		Title:        "Physics",
		Budget:       1000,
		BudgetPeriod: PeriodWeekly,
		Location:     "Online",
	}

	tests := []struct {
		name       string
		mutate     func(d *Draft)
		wantFields []string
	}{
		{name: "valid", mutate: func(*Draft) {}},
		{name: "zero budget", mutate: func(d *Draft) { d.Budget = 0 }, wantFields: []string{"budget"}},
		{name: "negative budget", mutate: func(d *Draft) { d.Budget = -5 }, wantFields: []string{"budget"}},
		{name: "missing title", mutate: func(d *Draft) { d.Title = "" }, wantFields: []string{"title"}},
		{name: "bad period", mutate: func(d *Draft) { d.BudgetPeriod = "yearly" }, wantFields: []string{"budget_period"}},
		{name: "bad status", mutate: func(d *Draft) { d.Status = "archived" }, wantFields: []string{"status"}},
		{name: "explicit pending status", mutate: func(d *Draft) { d.Status = StatusPending }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			errs := d.Validate()
			var got []string
			for field := range errs {
				got = append(got, field)
			}
			if diff := cmp.Diff(tt.wantFields, got); diff != "" {
				t.Errorf("invalid fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPatchValidate(t *testing.T) {
	zero := 0.0
	title := "New title"

	if errs := (Patch{Title: &title}).Validate(); errs != nil {
		t.Errorf("expected valid patch, got %v", errs)
	}
	errs := (Patch{Budget: &zero}).Validate()
	if _, ok := errs["budget"]; !ok {
		t.Errorf("expected budget error, got %v", errs)
	}
	if !(Patch{}).Empty() {
		t.Error("expected zero patch to be empty")
	}
}

func TestAmountString(t *testing.T) {
	tests := []struct {
		in   Amount
		want string
	}{
		{in: 0, want: "CFA 0"},
		{in: 999, want: "CFA 999"},
		{in: 1000, want: "CFA 1,000"},
		{in: 999.99, want: "CFA 1,000"},
		{in: 1500.25, want: "CFA 1,500"},
		{in: 1500.75, want: "CFA 1,501"},
		{in: 2500000, want: "CFA 2,500,000"},
		{in: -500, want: "CFA -500"},
		{in: -1234567, want: "CFA -1,234,567"},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.in.String()); diff != "" {
			t.Errorf("Amount(%v).String() mismatch (-want +got):\n%s", float64(tt.in), diff)
		}
	}
}
