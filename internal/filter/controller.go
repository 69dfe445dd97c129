package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"bilancio/internal/core"
)

// Lister is the slice of the API client the controller fetches pages through.
type Lister interface {
	ListTransactions(ctx context.Context, limit, offset int, params url.Values) ([]core.Transaction, error)
}

// Controller maintains the persisted filter spec and the accumulated result
// pages of one list view.
type Controller struct {
	view   string
	store  Store
	lister Lister
	now    func() time.Time

	mu          sync.Mutex
	spec        Spec
	items       []core.Transaction
	hasMore     bool
	loadingMore bool
}

type ControllerOption func(*Controller)

// WithClock overrides the wall clock used for date-range resolution.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController loads the persisted spec for the view. A missing or
// malformed persisted value silently falls back to defaults.
func NewController(ctx context.Context, view string, store Store, lister Lister, opts ...ControllerOption) *Controller {
	c := &Controller{
		view:   view,
		store:  store,
		lister: lister,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.spec = c.load(ctx)
	return c
}

func (c *Controller) storageKey() string {
	return "bilancio/filter/" + c.view
}

// load reads the spec from the store. It never fails: storage errors and
// malformed JSON both yield the default spec.
func (c *Controller) load(ctx context.Context) Spec {
	raw, found, err := c.store.GetItem(ctx, c.storageKey())
	if err != nil {
		slog.WarnContext(ctx, "Filter state read failed, using defaults", "view", c.view, "error", err)
		return DefaultSpec()
	}
	if !found {
		return DefaultSpec()
	}
	var spec Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		slog.WarnContext(ctx, "Discarding malformed persisted filter state", "view", c.view, "error", err)
		return DefaultSpec()
	}
	return spec.normalize()
}

// persist writes the whole spec synchronously. A write failure is logged and
// swallowed: the in-memory spec stays authoritative for this session.
func (c *Controller) persist(ctx context.Context, spec Spec) {
	raw, err := json.Marshal(spec)
	if err != nil {
		slog.ErrorContext(ctx, "Filter state marshal failed", "view", c.view, "error", err)
		return
	}
	if err := c.store.SetItem(ctx, c.storageKey(), string(raw)); err != nil {
		slog.WarnContext(ctx, "Filter state write failed", "view", c.view, "error", err)
	}
}

// Spec returns the current spec.
func (c *Controller) Spec() Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// Items returns a copy of the accumulated rows.
func (c *Controller) Items() []core.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Transaction, len(c.items))
	copy(out, c.items)
	return out
}

// HasMore reports whether a further page is believed to exist.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Update applies a spec mutation (one of the Spec setters) and persists the
// result. It does not fetch; callers follow up with Refresh.
func (c *Controller) Update(ctx context.Context, mutate func(Spec) Spec) Spec {
	c.mu.Lock()
	c.spec = mutate(c.spec)
	spec := c.spec
	c.mu.Unlock()

	c.persist(ctx, spec)
	return spec
}

// Refresh discards the accumulation and fetches from offset 0. On failure
// the view is left empty and retryable.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	spec := c.spec
	c.items = nil
	c.hasMore = false
	c.mu.Unlock()

	items, err := c.lister.ListTransactions(ctx, spec.PageSize, 0, spec.Query(c.now()))
	if err != nil {
		return fmt.Errorf("refresh %s view: %w", c.view, err)
	}

	c.mu.Lock()
	c.items = items
	c.hasMore = len(items) == spec.PageSize
	c.mu.Unlock()

	slog.DebugContext(ctx, "View refreshed", "view", c.view, "count", len(items), "has_more", len(items) == spec.PageSize)
	return nil
}

// LoadMore appends the next page. It is a no-op when no further page is
// expected and refuses to run concurrently with itself; a failed append
// leaves the accumulated rows untouched.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasMore || c.loadingMore {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	spec := c.spec
	offset := len(c.items)
	c.mu.Unlock()

	items, err := c.lister.ListTransactions(ctx, spec.PageSize, offset, spec.Query(c.now()))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false
	if err != nil {
		return fmt.Errorf("load more for %s view: %w", c.view, err)
	}
	c.items = append(c.items, items...)
	c.hasMore = len(items) == spec.PageSize
	return nil
}
