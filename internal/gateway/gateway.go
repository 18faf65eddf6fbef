// Package gateway is the REST client for the gig backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gigboard/internal/filter"
	"gigboard/internal/metrics"
	"gigboard/internal/model"
)

// maxBody caps how much of a response is read.
const maxBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CategorySink receives every category list fetched successfully.
type CategorySink interface {
	SaveCategories(ctx context.Context, cats []model.Category) error
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	// RateLimit is the sustained requests per second. Zero disables throttling.
	RateLimit float64
	Burst     int
	Logger    *slog.Logger
	// Categories, when set, is updated after each successful Categories call.
	Categories CategorySink
}

// Client talks to the gig backend.
type Client struct {
	client    HTTPClient
	baseURL   string
	token     string
	userAgent string
	limiter   *rate.Limiter
	sink      CategorySink
	logger    *slog.Logger
}

// New creates a Client with the given HTTP client.
func New(client HTTPClient, opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = "gigboard/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		client:    client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: opts.UserAgent,
		sink:      opts.Categories,
		logger:    opts.Logger,
	}
	if opts.RateLimit > 0 {
		burst := max(opts.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// NewHTTPClient returns the default transport with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Query selects a page of listings. Filter carries the server-side criteria;
// its client-side fields are ignored here.
type Query struct {
	Filter  filter.State
	OwnerID int64
	Include []string
	Page    int
	PerPage int
	// IncludePending asks the server to return pending listings next to
	// open ones when the status filter is open.
	IncludePending bool
}

// Values encodes q as URL query parameters. Unset criteria are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if len(q.Include) > 0 {
		v.Set("include", strings.Join(q.Include, ","))
	}
	f := q.Filter
	if term := strings.TrimSpace(f.Search); term != "" {
		v.Set("search", term)
	}
	if f.CategoryID > 0 {
		v.Set("category_id", strconv.FormatInt(f.CategoryID, 10))
	}
	if st, ok := f.Status.Status(); ok {
		v.Set("status", string(st))
	}
	if f.Price != (filter.PriceRange{}) && !f.Price.IsDefault() {
		v.Set("price", formatAmount(f.Price.Min)+"-"+formatAmount(f.Price.Max))
	}
	if f.BudgetPeriod != "" {
		v.Set("budget_period", string(f.BudgetPeriod))
	}
	if q.IncludePending {
		v.Set("include_pending", "1")
	}
	if q.OwnerID > 0 {
		v.Set("learner_id", strconv.FormatInt(q.OwnerID, 10))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ListResult is one page of listings as returned by the server.
type ListResult struct {
	Records []model.Listing
	Meta    model.PageMeta
}

// List fetches listings matching q. An empty result is not an error.
func (c *Client) List(ctx context.Context, q Query) (*ListResult, error) {
	var body struct {
		Data []model.Listing `json:"data"`
		Meta model.PageMeta  `json:"meta"`
	}
	if err := c.do(ctx, call{op: "list", method: http.MethodGet, path: "/gigs", query: q.Values()}, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		body.Data = []model.Listing{}
	}
	return &ListResult{Records: body.Data, Meta: body.Meta}, nil
}

// Get fetches a single listing.
func (c *Client) Get(ctx context.Context, id int64) (*model.Listing, error) {
	return c.single(ctx, call{op: "get", method: http.MethodGet, path: gigPath(id), id: id})
}

// Create validates d locally, then posts it. A rejected draft never reaches
// the server.
func (c *Client) Create(ctx context.Context, d model.Draft) (*model.Listing, error) {
	if errs := d.Validate(); errs != nil {
		return nil, &ValidationError{Message: "The given data was invalid.", Fields: errs}
	}
	return c.single(ctx, call{op: "create", method: http.MethodPost, path: "/gigs", payload: d})
}

// Update applies a partial update to listing id.
func (c *Client) Update(ctx context.Context, id int64, p model.Patch) (*model.Listing, error) {
	if errs := p.Validate(); errs != nil {
		return nil, &ValidationError{Message: "The given data was invalid.", Fields: errs}
	}
	return c.single(ctx, call{op: "update", method: http.MethodPut, path: gigPath(id), id: id, payload: p})
}

// Delete removes listing id. Deleting a listing twice yields a NotFoundError.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, call{op: "delete", method: http.MethodDelete, path: gigPath(id), id: id}, nil)
}

// Transition publishes or unpublishes listing id.
func (c *Client) Transition(ctx context.Context, id int64, a model.Action) (*model.Listing, error) {
	if !a.IsTransition() {
		return nil, fmt.Errorf("transition %s: %w", a, model.ErrActionNotAllowed)
	}
	return c.single(ctx, call{
		op:     string(a),
		method: http.MethodPatch,
		path:   gigPath(id) + "/" + string(a),
		id:     id,
		action: a,
	})
}

// Apply sends a tutor's proposal for listing id. The proposal is validated
// locally first; a 422 from the server carries its messages under
// "proposal_message".
func (c *Client) Apply(ctx context.Context, id int64, proposal string) (*model.Application, error) {
	p := model.Proposal{Message: strings.TrimSpace(proposal)}
	if errs := p.Validate(); errs != nil {
		return nil, &ValidationError{Message: "The given data was invalid.", Fields: errs}
	}
	var raw json.RawMessage
	if err := c.do(ctx, call{op: "apply", method: http.MethodPost, path: gigPath(id) + "/apply", id: id, payload: p}, &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Data *model.Application `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var app model.Application
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &app); err != nil {
			return nil, fmt.Errorf("apply: decode application: %w", err)
		}
	}
	return &app, nil
}

// Categories fetches every category.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var body struct {
		Data []model.Category `json:"data"`
	}
	if err := c.do(ctx, call{op: "categories", method: http.MethodGet, path: "/categories"}, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		body.Data = []model.Category{}
	}
	if c.sink != nil {
		if err := c.sink.SaveCategories(ctx, body.Data); err != nil {
			c.logger.Warn("save category snapshot", "error", err)
		}
	}
	return body.Data, nil
}

// ApplicationCount returns the number of applications against listing id.
func (c *Client) ApplicationCount(ctx context.Context, id int64) (int, error) {
	var body struct {
		Count *int              `json:"count"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, call{op: "applications", method: http.MethodGet, path: gigPath(id) + "/applications", id: id}, &body); err != nil {
		return 0, err
	}
	if body.Count != nil {
		return *body.Count, nil
	}
	return len(body.Data), nil
}

func gigPath(id int64) string {
	return "/gigs/" + strconv.FormatInt(id, 10)
}

type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	id      int64
	action  model.Action
	payload any
}

// single runs c and decodes a listing that may be bare or wrapped in {data}.
func (c *Client) single(ctx context.Context, cl call) (*model.Listing, error) {
	var raw json.RawMessage
	if err := c.do(ctx, cl, &raw); err != nil {
		return nil, err
	}
	l, err := decodeListing(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode listing: %w", cl.op, err)
	}
	return l, nil
}

func decodeListing(raw json.RawMessage) (*model.Listing, error) {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Data) > 0 && string(wrapped.Data) != "null" {
		raw = wrapped.Data
	}
	var l model.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) do(ctx context.Context, cl call, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.GatewayDuration.WithLabelValues(cl.op).Observe(time.Since(start).Seconds())
		metrics.GatewayRequests.WithLabelValues(cl.op, outcome(err)).Inc()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &NetworkError{Op: cl.op, Err: err}
		}
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.payload != nil {
		data, err := json.Marshal(cl.payload)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", cl.op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Op: cl.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &NetworkError{Op: cl.op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		err := classify(cl.id, cl.action, resp.StatusCode, eb)
		c.logger.Debug("backend request failed",
			"op", cl.op, "status", resp.StatusCode, "request_id", requestID, "error", err)
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ServerError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func outcome(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *NetworkError:
		return "network"
	case *ValidationError:
		return "validation"
	case *NotFoundError:
		return "not_found"
	case *InvalidTransitionError:
		return "invalid_transition"
	case *AuthError:
		return "auth"
	}
	return "error"
}
