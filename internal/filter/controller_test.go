package filter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"bilancio/internal/core"
)

// fakeLister serves canned pages and records every call.
type fakeLister struct {
	pages [][]core.Transaction
	err   error
	calls []listCall
}

type listCall struct {
	limit  int
	offset int
	params url.Values
}

func (f *fakeLister) ListTransactions(_ context.Context, limit, offset int, params url.Values) ([]core.Transaction, error) {
	f.calls = append(f.calls, listCall{limit: limit, offset: offset, params: params})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func makePage(n int, prefix string) []core.Transaction {
	page := make([]core.Transaction, n)
	for i := range page {
		page[i] = core.Transaction{
			ID:          fmt.Sprintf("%s-%d", prefix, i),
			Description: "riga",
			Amount:      core.Money{Cents: 100},
			Type:        core.Expense,
		}
	}
	return page
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestController_LoadDefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	c := NewController(ctx, "transactions", NewMemoryStore(), &fakeLister{}, WithClock(fixedClock))

	if got := c.Spec(); got != DefaultSpec() {
		t.Errorf("Spec() = %+v, want defaults", got)
	}
}

func TestController_LoadDefaultsWhenMalformed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SetItem(ctx, "bilancio/filter/transactions", `{"scope": not-json`); err != nil {
		t.Fatal(err)
	}

	c := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock))
	if got := c.Spec(); got != DefaultSpec() {
		t.Errorf("Spec() = %+v, want defaults for malformed persisted state", got)
	}
}

func TestController_LoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock))
	c.Update(ctx, func(s Spec) Spec { return s.SetScope(ScopeShared) })

	first := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock)).Spec()
	second := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock)).Spec()
	if first != second {
		t.Errorf("two loads without an intervening set differ: %+v vs %+v", first, second)
	}
}

func TestController_SetThenReloadRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	c := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock))
	c.Update(ctx, func(s Spec) Spec { return s.SetPage(4) })
	c.Update(ctx, func(s Spec) Spec { return s.SetType(TypeIncome) })

	reloaded := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock)).Spec()
	if reloaded.Type != TypeIncome {
		t.Errorf("reloaded Type = %s, want income", reloaded.Type)
	}
	if reloaded.Page != 1 {
		t.Errorf("reloaded Page = %d, want 1 after non-page change", reloaded.Page)
	}
}

func TestController_ViewsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	txs := NewController(ctx, "transactions", store, &fakeLister{}, WithClock(fixedClock))
	txs.Update(ctx, func(s Spec) Spec { return s.SetScope(ScopeShared) })

	users := NewController(ctx, "admin-users", store, &fakeLister{}, WithClock(fixedClock))
	if got := users.Spec().Scope; got != ScopeAll {
		t.Errorf("admin-users scope = %s, want all (unaffected by transactions view)", got)
	}
}

func TestController_RefreshSetsHasMore(t *testing.T) {
	tests := []struct {
		name     string
		pageLen  int
		wantMore bool
	}{
		{"exactly full page", DefaultPageSize, true},
		{"short page", DefaultPageSize - 1, false},
		{"empty page", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lister := &fakeLister{pages: [][]core.Transaction{makePage(tt.pageLen, "p0")}}
			c := NewController(ctx, "transactions", NewMemoryStore(), lister, WithClock(fixedClock))

			if err := c.Refresh(ctx); err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if c.HasMore() != tt.wantMore {
				t.Errorf("HasMore() = %v, want %v", c.HasMore(), tt.wantMore)
			}
			if len(c.Items()) != tt.pageLen {
				t.Errorf("Items() = %d rows, want %d", len(c.Items()), tt.pageLen)
			}
		})
	}
}

func TestController_LoadMoreAppends(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{pages: [][]core.Transaction{
		makePage(DefaultPageSize, "p0"),
		makePage(10, "p1"),
	}}
	c := NewController(ctx, "transactions", NewMemoryStore(), lister, WithClock(fixedClock))

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore() error = %v", err)
	}

	if got := len(c.Items()); got != DefaultPageSize+10 {
		t.Errorf("accumulated rows = %d, want %d", got, DefaultPageSize+10)
	}
	if c.HasMore() {
		t.Error("HasMore() = true after short page, want false")
	}
	last := lister.calls[len(lister.calls)-1]
	if last.offset != DefaultPageSize {
		t.Errorf("load-more offset = %d, want %d", last.offset, DefaultPageSize)
	}
}

func TestController_LoadMoreWithoutMoreIsNoop(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{pages: [][]core.Transaction{makePage(3, "p0")}}
	c := NewController(ctx, "transactions", NewMemoryStore(), lister, WithClock(fixedClock))

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	before := len(lister.calls)

	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore() error = %v", err)
	}
	if len(lister.calls) != before {
		t.Error("LoadMore issued a fetch despite hasMore=false")
	}
	if got := len(c.Items()); got != 3 {
		t.Errorf("Items() = %d rows, want 3 (unchanged)", got)
	}
}

func TestController_LoadMoreFailureKeepsItems(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{pages: [][]core.Transaction{makePage(DefaultPageSize, "p0")}}
	c := NewController(ctx, "transactions", NewMemoryStore(), lister, WithClock(fixedClock))

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	lister.err = errors.New("backend down")
	if err := c.LoadMore(ctx); err == nil {
		t.Fatal("LoadMore() = nil error, want failure")
	}
	if got := len(c.Items()); got != DefaultPageSize {
		t.Errorf("Items() = %d rows after failed append, want %d untouched", got, DefaultPageSize)
	}

	// Retryable: next attempt succeeds and appends.
	lister.err = nil
	lister.pages = [][]core.Transaction{makePage(5, "p1")}
	if err := c.LoadMore(ctx); err != nil {
		t.Fatalf("retry LoadMore() error = %v", err)
	}
	if got := len(c.Items()); got != DefaultPageSize+5 {
		t.Errorf("Items() = %d rows after retry, want %d", got, DefaultPageSize+5)
	}
}

func TestController_RefreshFailureLeavesEmptyRetryableView(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{err: errors.New("backend down")}
	c := NewController(ctx, "transactions", NewMemoryStore(), lister, WithClock(fixedClock))

	if err := c.Refresh(ctx); err == nil {
		t.Fatal("Refresh() = nil error, want failure")
	}
	if len(c.Items()) != 0 {
		t.Errorf("Items() = %d rows after failed initial fetch, want 0", len(c.Items()))
	}

	lister.err = nil
	lister.pages = [][]core.Transaction{makePage(2, "p0")}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("retry Refresh() error = %v", err)
	}
	if len(c.Items()) != 2 {
		t.Errorf("Items() = %d rows after retry, want 2", len(c.Items()))
	}
}
