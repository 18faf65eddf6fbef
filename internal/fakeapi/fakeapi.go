// Package fakeapi is an in-memory implementation of the gig backend's REST
// contract. It backs local development and the client tests.
package fakeapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gigboard/internal/filter"
	"gigboard/internal/model"
)

// DefaultMinBudget is the smallest budget the server accepts.
const DefaultMinBudget = 1000

// Options configures a Server.
type Options struct {
	// Token, when set, is required as a bearer token on mutating routes.
	Token     string
	MinBudget float64
	// OwnerID is assigned to listings created through the API.
	OwnerID int64
	Logger  *slog.Logger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Server holds the backend state.
type Server struct {
	opts Options

	mu         sync.Mutex
	nextID     int64
	gigs       map[int64]model.Listing
	apps       map[int64][]model.Application
	categories []model.Category
	calls      []Call
}

// Call records one request received by the server.
type Call struct {
	Method string
	Path   string
	Query  string
}

// New creates an empty Server.
func New(opts Options) *Server {
	if opts.MinBudget <= 0 {
		opts.MinBudget = DefaultMinBudget
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:   opts,
		nextID: 1,
		gigs:   make(map[int64]model.Listing),
		apps:   make(map[int64][]model.Application),
	}
}

// Seed adds listings. Missing IDs and timestamps are assigned.
func (s *Server) Seed(listings ...model.Listing) []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if l.ID == 0 {
			l.ID = s.nextID
		}
		if l.ID >= s.nextID {
			s.nextID = l.ID + 1
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.opts.Now().UTC().Add(time.Duration(l.ID) * time.Second)
		}
		if l.UpdatedAt.IsZero() {
			l.UpdatedAt = l.CreatedAt
		}
		if l.Status == "" {
			l.Status = model.StatusPending
		}
		l.Category = s.category(l.CategoryID)
		l.Applications = nil
		l.ApplicationCount = 0
		s.gigs[l.ID] = l
		out = append(out, l)
	}
	return out
}

// SeedCategories replaces the category list.
func (s *Server) SeedCategories(cats ...model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]model.Category(nil), cats...)
}

// SeedApplications attaches n pending applications to listing id.
func (s *Server) SeedApplications(id int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range n {
		s.apps[id] = append(s.apps[id], model.Application{ID: int64(i + 1), Status: "pending"})
	}
}

// Listing returns the stored listing and whether it exists.
func (s *Server) Listing(id int64) (model.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.gigs[id]
	return l, ok
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Handler returns the gin router serving the REST contract.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.record)

	r.GET("/gigs", s.list)
	r.GET("/gigs/:id", s.get)
	r.GET("/gigs/:id/applications", s.applications)
	r.GET("/categories", s.listCategories)

	protected := r.Group("/")
	protected.Use(s.auth)
	{
		protected.POST("/gigs", s.create)
		protected.PUT("/gigs/:id", s.update)
		protected.DELETE("/gigs/:id", s.remove)
		protected.PATCH("/gigs/:id/publish", s.transition(model.ActionPublish))
		protected.PATCH("/gigs/:id/unpublish", s.transition(model.ActionUnpublish))
		protected.POST("/gigs/:id/apply", s.apply)
	}
	return r
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: c.Request.Method, Path: c.Request.URL.Path, Query: c.Request.URL.RawQuery})
	s.mu.Unlock()
	s.opts.Logger.Debug("fakeapi request", "method", c.Request.Method, "path", c.Request.URL.Path, "request_id", c.GetHeader("X-Request-ID"))
	c.Next()
}

func (s *Server) auth(c *gin.Context) {
	if s.opts.Token == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != "Bearer "+s.opts.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
		return
	}
	c.Next()
}

func (s *Server) list(c *gin.Context) {
	var (
		term       = strings.TrimSpace(c.Query("search"))
		status     = c.Query("status")
		pending    = c.Query("include_pending") == "1" || c.Query("include_pending") == "true"
		period     = c.Query("budget_period")
		include    = strings.Split(c.Query("include"), ",")
		catID, _   = strconv.ParseInt(c.Query("category_id"), 10, 64)
		ownerID, _ = strconv.ParseInt(c.Query("learner_id"), 10, 64)
		page, _    = strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	)
	price, hasPrice, ok := parsePrice(c.Query("price"))
	if !ok {
		s.invalid(c, model.FieldErrors{"price": {"The price must be in the form min-max."}})
		return
	}

	s.mu.Lock()
	var matched []model.Listing
	for _, l := range s.gigs {
		switch {
		case catID > 0 && l.CategoryID != catID:
			continue
		case ownerID > 0 && l.OwnerID != ownerID:
			continue
		case status != "" && string(l.Status) != status &&
			!(pending && status == string(model.StatusOpen) && l.Status == model.StatusPending):
			continue
		case period != "" && string(l.BudgetPeriod) != period:
			continue
		case hasPrice && !price.Contains(float64(l.Budget)):
			continue
		case !filter.MatchesSearch(l, term):
			continue
		}
		matched = append(matched, s.withRelations(l, include))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if perPage < 1 {
		perPage = 10
	}
	total := len(matched)
	totalPages := (total + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	data := matched[start:end]
	if data == nil {
		data = []model.Listing{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": model.PageMeta{CurrentPage: page, TotalPages: totalPages, PerPage: perPage, TotalItems: total},
	})
}

// parsePrice reads "min-max". An empty value means no price filter.
func parsePrice(v string) (r filter.PriceRange, set, ok bool) {
	if v == "" {
		return filter.PriceRange{}, false, true
	}
	lo, hi, found := strings.Cut(v, "-")
	if !found {
		return filter.PriceRange{}, false, false
	}
	minV, err1 := strconv.ParseFloat(lo, 64)
	maxV, err2 := strconv.ParseFloat(hi, 64)
	if err1 != nil || err2 != nil {
		return filter.PriceRange{}, false, false
	}
	return filter.PriceRange{Min: minV, Max: maxV}.Normalize(), true, true
}

// withRelations must be called with s.mu held.
func (s *Server) withRelations(l model.Listing, include []string) model.Listing {
	l.Category = s.category(l.CategoryID)
	for _, rel := range include {
		if strings.TrimSpace(rel) == "applications" {
			l.Applications = append([]model.Application{}, s.apps[l.ID]...)
		}
	}
	return l
}

// category must be called with s.mu held.
func (s *Server) category(id int64) *model.Category {
	for _, cat := range s.categories {
		if cat.ID == id {
			return &cat
		}
	}
	return nil
}

func (s *Server) lookup(c *gin.Context) (model.Listing, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Gig not found."})
		return model.Listing{}, false
	}
	s.mu.Lock()
	l, ok := s.gigs[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Gig not found."})
		return model.Listing{}, false
	}
	return l, true
}

func (s *Server) get(c *gin.Context) {
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.Lock()
	l = s.withRelations(l, strings.Split(c.Query("include"), ","))
	s.mu.Unlock()
	c.JSON(http.StatusOK, l)
}

func (s *Server) applications(c *gin.Context) {
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.Lock()
	apps := append([]model.Application{}, s.apps[l.ID]...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": len(apps), "data": apps})
}

func (s *Server) listCategories(c *gin.Context) {
	s.mu.Lock()
	cats := append([]model.Category{}, s.categories...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"data": cats})
}

func (s *Server) invalid(c *gin.Context, errs model.FieldErrors) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
}

func (s *Server) checkBudget(budget float64, errs model.FieldErrors) model.FieldErrors {
	if budget > 0 && budget < s.opts.MinBudget {
		if errs == nil {
			errs = model.FieldErrors{}
		}
		errs["budget"] = append(errs["budget"], fmt.Sprintf("Minimum budget is %s.", model.Amount(s.opts.MinBudget)))
	}
	return errs
}

func (s *Server) create(c *gin.Context) {
	var d model.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload."})
		return
	}
	errs := s.checkBudget(d.Budget, d.Validate())
	if errs != nil {
		s.invalid(c, errs)
		return
	}
	if d.Status == "" {
		d.Status = model.StatusPending
	}

	s.mu.Lock()
	now := s.opts.Now().UTC()
	l := model.Listing{
		ID:           s.nextID,
		Title:        d.Title,
		Description:  d.Description,
		Budget:       model.Amount(d.Budget),
		BudgetPeriod: d.BudgetPeriod,
		Location:     d.Location,
		Status:       d.Status,
		CategoryID:   d.CategoryID,
		Category:     s.category(d.CategoryID),
		OwnerID:      s.opts.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.nextID++
	s.gigs[l.ID] = l
	s.mu.Unlock()

	c.JSON(http.StatusCreated, l)
}

func (s *Server) update(c *gin.Context) {
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	var p model.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload."})
		return
	}
	errs := p.Validate()
	if p.Budget != nil {
		errs = s.checkBudget(*p.Budget, errs)
	}
	if errs != nil {
		s.invalid(c, errs)
		return
	}

	if p.CategoryID != nil {
		l.CategoryID = *p.CategoryID
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Budget != nil {
		l.Budget = model.Amount(*p.Budget)
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.BudgetPeriod != nil {
		l.BudgetPeriod = *p.BudgetPeriod
	}

	s.mu.Lock()
	l.Category = s.category(l.CategoryID)
	l.UpdatedAt = s.opts.Now().UTC()
	s.gigs[l.ID] = l
	s.mu.Unlock()

	c.JSON(http.StatusOK, l)
}

func (s *Server) remove(c *gin.Context) {
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.gigs, l.ID)
	delete(s.apps, l.ID)
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) apply(c *gin.Context) {
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	var p model.Proposal
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload."})
		return
	}
	p.Message = strings.TrimSpace(p.Message)
	if errs := p.Validate(); errs != nil {
		s.invalid(c, errs)
		return
	}
	if l.Status != model.StatusOpen {
		s.invalid(c, model.FieldErrors{"proposal_message": {"This gig is not accepting applications."}})
		return
	}

	s.mu.Lock()
	app := model.Application{
		ID:              int64(len(s.apps[l.ID]) + 1),
		GigID:           l.ID,
		ProposalMessage: p.Message,
		Status:          "pending",
		CreatedAt:       s.opts.Now().UTC().Format(time.RFC3339),
	}
	s.apps[l.ID] = append(s.apps[l.ID], app)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"data": app})
}

func (s *Server) transition(a model.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.lookup(c)
		if !ok {
			return
		}
		next, err := l.Status.Next(a)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"message": fmt.Sprintf("Only %s gigs can be %sed.", transitionSource(a), a),
			})
			return
		}
		s.mu.Lock()
		l.Status = next
		l.UpdatedAt = s.opts.Now().UTC()
		s.gigs[l.ID] = l
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"data": l})
	}
}

func transitionSource(a model.Action) model.Status {
	for _, st := range model.Statuses {
		if _, err := st.Next(a); err == nil {
			return st
		}
	}
	return ""
}
