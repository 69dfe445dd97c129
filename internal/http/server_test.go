package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/filter"
	"bilancio/internal/notify"
	"bilancio/internal/poller"
)

type fakeLister struct {
	mu    sync.Mutex
	pages [][]core.Transaction
	calls int
}

func (f *fakeLister) ListTransactions(ctx context.Context, limit, offset int, params url.Values) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	if len(f.pages) > 1 {
		f.pages = f.pages[1:]
	}
	return page, nil
}

type fakeRefreshClient struct {
	mu      sync.Mutex
	balance int64
	fetches int
}

func (f *fakeRefreshClient) GetLimits(ctx context.Context, budgetID string) (core.LimitSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return core.LimitSet{BudgetID: budgetID}, nil
}

func (f *fakeRefreshClient) TriggerLimitRefresh(ctx context.Context, budgetID string) error {
	return nil
}

func (f *fakeRefreshClient) Balance(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func makePage(n int, prefix string) []core.Transaction {
	page := make([]core.Transaction, n)
	for i := range page {
		page[i] = core.Transaction{
			ID:          prefix + string(rune('a'+i%26)),
			Description: "spesa",
			Amount:      core.Money{Cents: 100},
			Type:        core.Expense,
		}
	}
	return page
}

func newTestServer(t *testing.T, lister filter.Lister, client poller.Client) *Server {
	t.Helper()

	ctrl := filter.NewController(context.Background(), "movimenti", filter.NewMemoryStore(), lister)
	caches := poller.Caches{
		Snapshots: cache.NewLRUCache[core.LimitSet](10, time.Minute),
		Balances:  cache.NewLRUCache[int64](10, time.Minute),
	}
	p := poller.New(client, caches, notify.LogNotifier{})

	s := NewServer(":0", Deps{
		Views:  map[string]*filter.Controller{"movimenti": ctrl},
		Poller: p,
		PollOpts: poller.Options{
			Cost:     1,
			Interval: time.Millisecond,
			Timeout:  20 * time.Millisecond,
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) viewState {
	t.Helper()
	var env struct {
		Data viewState `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env.Data
}

func TestServer_ViewState(t *testing.T) {
	lister := &fakeLister{pages: [][]core.Transaction{makePage(3, "tx")}}
	s := newTestServer(t, lister, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodGet, "/views/movimenti", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET view status = %d, want 200", rec.Code)
	}

	state := decodeState(t, rec)
	if state.View != "movimenti" {
		t.Errorf("view = %q, want movimenti", state.View)
	}
	if len(state.Items) != 3 {
		t.Errorf("items = %d, want 3", len(state.Items))
	}
	if state.HasMore {
		t.Error("hasMore = true for a short page")
	}
	if state.Filter.Page != 1 {
		t.Errorf("page = %d, want 1", state.Filter.Page)
	}
}

func TestServer_UnknownView(t *testing.T) {
	s := newTestServer(t, &fakeLister{}, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodGet, "/views/sconosciuta", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown view status = %d, want 404", rec.Code)
	}
}

func TestServer_FilterMutationResetsPage(t *testing.T) {
	lister := &fakeLister{pages: [][]core.Transaction{makePage(filter.DefaultPageSize, "tx")}}
	s := newTestServer(t, lister, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodPost, "/views/movimenti/filter", `{"page": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST filter status = %d, want 200", rec.Code)
	}
	if got := decodeState(t, rec).Filter.Page; got != 3 {
		t.Fatalf("page after SetPage = %d, want 3", got)
	}

	rec = do(s, http.MethodPost, "/views/movimenti/filter", `{"scope": "own"}`)
	state := decodeState(t, rec)
	if state.Filter.Scope != filter.ScopeOwn {
		t.Errorf("scope = %q, want own", state.Filter.Scope)
	}
	if state.Filter.Page != 1 {
		t.Errorf("page after scope change = %d, want 1", state.Filter.Page)
	}
}

func TestServer_LoadMoreAppends(t *testing.T) {
	lister := &fakeLister{pages: [][]core.Transaction{
		makePage(filter.DefaultPageSize, "p1"),
		makePage(3, "p2"),
	}}
	s := newTestServer(t, lister, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodGet, "/views/movimenti", "")
	if got := decodeState(t, rec); !got.HasMore {
		t.Fatal("hasMore = false after a full page")
	}

	rec = do(s, http.MethodPost, "/views/movimenti/more", "")
	state := decodeState(t, rec)
	if want := filter.DefaultPageSize + 3; len(state.Items) != want {
		t.Errorf("items after load more = %d, want %d", len(state.Items), want)
	}
	if state.HasMore {
		t.Error("hasMore = true after a short second page")
	}
}

func TestServer_RefreshAccepted(t *testing.T) {
	s := newTestServer(t, &fakeLister{}, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodPost, "/budgets/b1/limits/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST refresh status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RefreshConflictWhileRunning(t *testing.T) {
	s := newTestServer(t, &fakeLister{}, &fakeRefreshClient{balance: 10})

	if rec := do(s, http.MethodPost, "/budgets/b1/limits/refresh", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first refresh status = %d, want 202", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/budgets/b1/limits/refresh", ""); rec.Code != http.StatusConflict {
		t.Errorf("second refresh status = %d, want 409", rec.Code)
	}
}

func TestServer_RefreshInsufficientBalance(t *testing.T) {
	s := newTestServer(t, &fakeLister{}, &fakeRefreshClient{balance: 0})

	rec := do(s, http.MethodPost, "/budgets/b1/limits/refresh", "")
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("refresh status = %d, want 402", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Saldo insufficiente") {
		t.Errorf("body %q missing insufficient balance message", rec.Body.String())
	}
}

func TestServer_ExportNotConfigured(t *testing.T) {
	s := newTestServer(t, &fakeLister{}, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodPost, "/views/movimenti/export", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("export status = %d, want 503", rec.Code)
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	s := newTestServer(t, &fakeLister{pages: [][]core.Transaction{makePage(1, "tx")}}, &fakeRefreshClient{balance: 10})

	rec := do(s, http.MethodGet, "/views/movimenti", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}
}
