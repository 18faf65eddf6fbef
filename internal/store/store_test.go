package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"gigboard/internal/fakeapi"
	"gigboard/internal/filter"
	"gigboard/internal/gateway"
	"gigboard/internal/model"
	"gigboard/internal/snapshot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGateway answers List through a per-test function and records queries.
type fakeGateway struct {
	mu      sync.Mutex
	queries []gateway.Query
	list    func(ctx context.Context, q gateway.Query) (*gateway.ListResult, error)
	counts  map[int64]int
	created []model.Draft
	applied []string
	failOn  error
}

func (f *fakeGateway) List(ctx context.Context, q gateway.Query) (*gateway.ListResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.list(ctx, q)
}

func (f *fakeGateway) Create(_ context.Context, d model.Draft) (*model.Listing, error) {
	if f.failOn != nil {
		return nil, f.failOn
	}
	f.created = append(f.created, d)
	return &model.Listing{ID: 99, Title: d.Title}, nil
}

func (f *fakeGateway) Update(context.Context, int64, model.Patch) (*model.Listing, error) {
	return nil, f.failOn
}

func (f *fakeGateway) Delete(context.Context, int64) error { return f.failOn }

func (f *fakeGateway) Transition(context.Context, int64, model.Action) (*model.Listing, error) {
	return nil, f.failOn
}

func (f *fakeGateway) ApplicationCount(_ context.Context, id int64) (int, error) {
	n, ok := f.counts[id]
	if !ok {
		return 0, &gateway.NotFoundError{ID: id}
	}
	return n, nil
}

func (f *fakeGateway) Apply(_ context.Context, id int64, proposal string) (*model.Application, error) {
	if f.failOn != nil {
		return nil, f.failOn
	}
	f.applied = append(f.applied, proposal)
	return &model.Application{ID: 1, GigID: id, ProposalMessage: proposal, Status: "pending"}, nil
}

func (f *fakeGateway) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func listings(ids ...int64) []model.Listing {
	out := make([]model.Listing, len(ids))
	for i, id := range ids {
		out[i] = model.Listing{ID: id, Status: model.StatusOpen}
	}
	return out
}

func ids(records []model.Listing) []int64 {
	out := []int64{}
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestLoadDiscardsOutOfOrderResponses(t *testing.T) {
	releaseA := make(chan struct{})
	aStarted := make(chan struct{})
	gw := &fakeGateway{list: func(_ context.Context, q gateway.Query) (*gateway.ListResult, error) {
		if q.Filter.Search == "a" {
			close(aStarted)
			<-releaseA
			return &gateway.ListResult{Records: listings(1, 2)}, nil
		}
		return &gateway.ListResult{Records: listings(3)}, nil
	}}
	s := New(gw, Scope{Name: "public"}, nil, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		s.Load(ctx, filter.Default(6).WithSearch("a"))
		close(done)
	}()
	<-aStarted

	s.Load(ctx, filter.Default(6).WithSearch("b"))
	close(releaseA)
	<-done

	st := s.State()
	if diff := cmp.Diff([]int64{3}, ids(st.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if st.Loading {
		t.Error("still loading after latest load settled")
	}
	if diff := cmp.Diff("b", st.Filter.Search); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFailurePreservesRecords(t *testing.T) {
	fail := false
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		if fail {
			return nil, &gateway.NetworkError{Op: "list", Err: errors.New("timeout")}
		}
		return &gateway.ListResult{Records: listings(1, 2)}, nil
	}}
	s := New(gw, Scope{Name: "public"}, nil, nil)
	ctx := context.Background()

	s.Load(ctx, filter.Default(6))
	fail = true
	s.Refresh(ctx)

	st := s.State()
	if diff := cmp.Diff([]int64{1, 2}, ids(st.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	var netErr *gateway.NetworkError
	if !errors.As(st.Err, &netErr) {
		t.Errorf("Err = %v, want NetworkError", st.Err)
	}
	if st.Loading {
		t.Error("Loading not cleared after failure")
	}

	fail = false
	s.Refresh(ctx)
	if err := s.State().Err; err != nil {
		t.Errorf("Err not cleared by a successful load: %v", err)
	}
}

func TestLoadQuery(t *testing.T) {
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: []model.Listing{}}, nil
	}}
	s := New(gw, Scope{Name: "mine", OwnerID: 3, Include: []string{"applications"}}, nil, nil)

	f := filter.Default(4).WithPrice(filter.PriceRange{Min: 1000, Max: 5000}).WithPage(3)
	s.Load(context.Background(), f)

	want := gateway.Query{Filter: f, OwnerID: 3, Include: []string{"applications"}, Page: 1, PerPage: DefaultFetchSize}
	if diff := cmp.Diff(want, gw.queries[0]); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("mine:3", s.Scope().Key()); diff != "" {
		t.Errorf("key mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadQueryIncludesPending(t *testing.T) {
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: []model.Listing{}}, nil
	}}
	s := New(gw, Scope{Name: "public", IncludePending: true}, nil, nil)
	s.Load(context.Background(), filter.Default(6))

	if !gw.queries[0].IncludePending {
		t.Errorf("query = %+v, want IncludePending", gw.queries[0])
	}
	if diff := cmp.Diff("1", gw.queries[0].Values().Get("include_pending")); diff != "" {
		t.Errorf("include_pending mismatch (-want +got):\n%s", diff)
	}
}

func TestMutateApply(t *testing.T) {
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: listings(1)}, nil
	}}
	s := New(gw, Scope{Name: "public"}, nil, nil)
	ctx := context.Background()
	s.Load(ctx, filter.Default(6))

	l, err := s.Mutate(ctx, Apply(1, "proposal text"))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if l != nil {
		t.Errorf("returned listing = %+v, want nil", l)
	}
	if diff := cmp.Diff([]string{"proposal text"}, gw.applied); diff != "" {
		t.Errorf("proposals mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, gw.queryCount()); diff != "" {
		t.Errorf("list calls mismatch (-want +got):\n%s", diff)
	}
}

func TestMutateRefreshes(t *testing.T) {
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: listings(1)}, nil
	}}
	s := New(gw, Scope{Name: "mine"}, nil, nil)
	ctx := context.Background()
	s.Load(ctx, filter.Default(6))

	l, err := s.Mutate(ctx, Create(model.Draft{Title: "New", Budget: 2000, BudgetPeriod: model.PeriodDaily}))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if l.ID != 99 {
		t.Errorf("returned listing = %+v", l)
	}
	if diff := cmp.Diff(2, gw.queryCount()); diff != "" {
		t.Errorf("list calls mismatch (-want +got):\n%s", diff)
	}
}

func TestMutateFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantRefresh bool
	}{
		{name: "validation leaves cache", err: &gateway.ValidationError{Fields: model.FieldErrors{"budget": {"Minimum budget is CFA 1,000."}}}},
		{name: "invalid transition leaves cache", err: &gateway.InvalidTransitionError{ID: 1, Action: model.ActionPublish}},
		{name: "not found refreshes", err: &gateway.NotFoundError{ID: 1}, wantRefresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{
				failOn: tt.err,
				list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
					return &gateway.ListResult{Records: listings(1, 2)}, nil
				},
			}
			s := New(gw, Scope{Name: "mine"}, nil, nil)
			ctx := context.Background()
			s.Load(ctx, filter.Default(6))

			_, err := s.Mutate(ctx, Transition(1, model.ActionPublish))
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want it to wrap %v", err, tt.err)
			}
			wantCalls := 1
			if tt.wantRefresh {
				wantCalls = 2
			}
			if diff := cmp.Diff(wantCalls, gw.queryCount()); diff != "" {
				t.Errorf("list calls mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int64{1, 2}, ids(s.State().Records)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: listings(5)}, nil
	}}
	s := New(gw, Scope{Name: "public"}, nil, nil)

	var got []int
	unsubscribe := s.Subscribe(func(st State) { got = append(got, len(st.Records)) })
	s.Load(context.Background(), filter.Default(6))
	unsubscribe()
	s.Load(context.Background(), filter.Default(6))

	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestPrimeAndSnapshotWrite(t *testing.T) {
	snap, err := snapshot.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer func() { _ = snap.Close() }()
	ctx := context.Background()

	if err := snap.SaveListings(ctx, "public", listings(7, 8)); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	gw := &fakeGateway{list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
		return &gateway.ListResult{Records: listings(9)}, nil
	}}
	s := New(gw, Scope{Name: "public"}, snap, nil)

	if !s.Prime(ctx) {
		t.Fatal("expected prime from snapshot")
	}
	st := s.State()
	if !st.FromSnapshot {
		t.Error("FromSnapshot not set")
	}
	if diff := cmp.Diff([]int64{7, 8}, ids(st.Records)); diff != "" {
		t.Errorf("primed records mismatch (-want +got):\n%s", diff)
	}

	s.Load(ctx, filter.Default(6))
	if s.State().FromSnapshot {
		t.Error("FromSnapshot still set after a load")
	}
	if s.Prime(ctx) {
		t.Error("prime replaced loaded records")
	}

	saved, err := snap.LoadListings(ctx, "public")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if diff := cmp.Diff([]int64{9}, ids(saved.Records)); diff != "" {
		t.Errorf("snapshot not overwritten (-want +got):\n%s", diff)
	}
}

func TestFillApplicationCounts(t *testing.T) {
	gw := &fakeGateway{
		counts: map[int64]int{1: 3, 2: 0, 3: 5},
		list: func(context.Context, gateway.Query) (*gateway.ListResult, error) {
			return &gateway.ListResult{Records: listings(1, 2, 3, 4)}, nil
		},
	}
	s := New(gw, Scope{Name: "mine"}, nil, nil)
	s.Load(context.Background(), filter.Default(6))

	err := s.FillApplicationCounts(context.Background())
	if !gateway.IsNotFound(err) {
		t.Errorf("expected the failed count to be reported, got %v", err)
	}

	var got []int
	for _, r := range s.State().Records {
		got = append(got, r.ApplicationCount)
	}
	if diff := cmp.Diff([]int{3, 0, 5, 0}, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if l, ok := s.Get(3); !ok || l.ApplicationCount != 5 {
		t.Errorf("Get(3) = %+v, %v", l, ok)
	}
}

func newAPIStore(t *testing.T, scope Scope) (*fakeapi.Server, *Store) {
	t.Helper()
	api := fakeapi.New(fakeapi.Options{OwnerID: 3})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	gw := gateway.New(srv.Client(), gateway.Options{BaseURL: srv.URL})
	return api, New(gw, scope, nil, nil)
}

func TestMutationConsistencyAgainstAPI(t *testing.T) {
	api, s := newAPIStore(t, Scope{Name: "mine", OwnerID: 3})
	api.Seed(model.Listing{ID: 1, Title: "Algebra", Budget: 1500, BudgetPeriod: model.PeriodHourly, Status: model.StatusPending, OwnerID: 3})
	ctx := context.Background()
	s.Load(ctx, filter.Default(6))

	created, err := s.Mutate(ctx, Create(model.Draft{Title: "Physics", Budget: 2500, BudgetPeriod: model.PeriodWeekly}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := s.Get(created.ID); !ok {
		t.Error("created listing missing after refresh")
	}

	if _, err := s.Mutate(ctx, Transition(1, model.ActionPublish)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if l, _ := s.Get(1); l.Status != model.StatusOpen {
		t.Errorf("status after publish = %s", l.Status)
	}

	title := "Algebra II"
	if _, err := s.Mutate(ctx, Update(1, model.Patch{Title: &title})); err != nil {
		t.Fatalf("update: %v", err)
	}
	if l, _ := s.Get(1); l.Title != title {
		t.Errorf("title after update = %q", l.Title)
	}

	if _, err := s.Mutate(ctx, Transition(1, model.ActionUnpublish)); err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if l, _ := s.Get(1); l.Status != model.StatusPending {
		t.Errorf("status after unpublish = %s", l.Status)
	}

	if _, err := s.Mutate(ctx, Delete(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get(1); ok {
		t.Error("deleted listing still cached")
	}

	// Deleted elsewhere: the not-found error reconciles the cache.
	api.Seed(model.Listing{ID: 50, Title: "Gone soon", Budget: 2000, BudgetPeriod: model.PeriodDaily, OwnerID: 3})
	s.Refresh(ctx)
	if _, ok := s.Get(50); !ok {
		t.Fatal("seeded listing not loaded")
	}
	if err := deleteDirect(api, 50); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Mutate(ctx, Delete(50)); !gateway.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, ok := s.Get(50); ok {
		t.Error("stale listing still cached after not-found")
	}
}

func deleteDirect(api *fakeapi.Server, id int64) error {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/gigs/"+strconv.FormatInt(id, 10), nil)
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		return fmt.Errorf("direct delete: status %d", rec.Code)
	}
	return nil
}

func TestValidationScenario(t *testing.T) {
	api, s := newAPIStore(t, Scope{Name: "mine", OwnerID: 3})
	api.Seed(model.Listing{ID: 1, Title: "Algebra", Budget: 1500, BudgetPeriod: model.PeriodHourly, OwnerID: 3})
	ctx := context.Background()
	s.Load(ctx, filter.Default(6))
	before := s.State().Records

	_, err := s.Mutate(ctx, Create(model.Draft{Title: "Cheap", Budget: 500, BudgetPeriod: model.PeriodHourly}))
	var verr *gateway.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if diff := cmp.Diff("Minimum budget is CFA 1,000.", verr.First("budget")); diff != "" {
		t.Errorf("field error mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, s.State().Records); diff != "" {
		t.Errorf("cache changed after failed create (-want +got):\n%s", diff)
	}
}

func TestPriceScenario(t *testing.T) {
	api, s := newAPIStore(t, Scope{Name: "public"})
	budgets := []model.Amount{500, 1000, 2500, 5000, 6000, 8000, 9000, 12000, 300, 700}
	for i, b := range budgets {
		api.Seed(model.Listing{ID: int64(i + 1), Title: "Gig", Budget: b, BudgetPeriod: model.PeriodHourly, Status: model.StatusOpen})
	}
	ctx := context.Background()

	f := filter.Default(4).WithStatus(filter.ForStatus(model.StatusOpen))
	s.Load(ctx, f)
	if diff := cmp.Diff(10, len(s.State().Records)); diff != "" {
		t.Fatalf("open listings mismatch (-want +got):\n%s", diff)
	}

	s.Load(ctx, f.WithPrice(filter.PriceRange{Min: 1000, Max: 5000}))
	calls := api.Calls()
	last := calls[len(calls)-1]
	if got := s.Query(s.State().Filter).Values().Get("price"); got != "1000-5000" {
		t.Errorf("price param = %q", got)
	}
	if !containsParam(last.Query, "price=1000-5000") {
		t.Errorf("request query %q lacks price=1000-5000", last.Query)
	}
	if diff := cmp.Diff(3, len(s.State().Records)); diff != "" {
		t.Errorf("filtered listings mismatch (-want +got):\n%s", diff)
	}
}

func containsParam(raw, param string) bool {
	return slices.Contains(strings.Split(raw, "&"), param)
}

func TestLoadFollowsServerPages(t *testing.T) {
	seed := func(api *fakeapi.Server) {
		for i := range 7 {
			api.Seed(model.Listing{ID: int64(i + 1), Title: "Gig", Budget: 2000, BudgetPeriod: model.PeriodDaily, Status: model.StatusPending, OwnerID: 3})
		}
	}
	ctx := context.Background()

	t.Run("all pages", func(t *testing.T) {
		api, s := newAPIStore(t, Scope{Name: "mine", OwnerID: 3, FetchSize: 5})
		seed(api)
		s.Load(ctx, filter.Default(6))

		st := s.State()
		if diff := cmp.Diff([]int64{7, 6, 5, 4, 3, 2, 1}, ids(st.Records)); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
		if st.Truncated {
			t.Error("Truncated set although every page was fetched")
		}
		if diff := cmp.Diff(7, st.Meta.TotalItems); diff != "" {
			t.Errorf("total items mismatch (-want +got):\n%s", diff)
		}

		// A listing from the second server page can be acted on.
		if _, err := s.Mutate(ctx, Transition(1, model.ActionPublish)); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if l, _ := api.Listing(1); l.Status != model.StatusOpen {
			t.Errorf("server status of #1 = %s", l.Status)
		}
	})

	t.Run("page cap", func(t *testing.T) {
		api, s := newAPIStore(t, Scope{Name: "mine", OwnerID: 3, FetchSize: 5, MaxPages: 1})
		seed(api)
		s.Load(ctx, filter.Default(6))

		st := s.State()
		if diff := cmp.Diff(5, len(st.Records)); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
		if !st.Truncated {
			t.Error("Truncated not set when the page cap cut the load short")
		}
		if diff := cmp.Diff(7, st.Meta.TotalItems); diff != "" {
			t.Errorf("total items mismatch (-want +got):\n%s", diff)
		}
	})
}
