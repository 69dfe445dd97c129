package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"bilancio/internal/core"
)

func TestClient_Classify(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantCode string
	}{
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message":"token expired"}`,
			wantKind: KindAuth,
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{"message":"not your budget"}`,
			wantKind: KindPermission,
		},
		{
			name:     "domain error with code",
			status:   http.StatusUnprocessableEntity,
			body:     `{"code":"insufficient_balance","message":"not enough coins"}`,
			wantKind: KindDomain,
			wantCode: CodeInsufficientBalance,
		},
		{
			name:     "server error without envelope",
			status:   http.StatusInternalServerError,
			body:     `boom`,
			wantKind: KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			_, err := client.GetLimits(context.Background(), "bud-1")
			if err == nil {
				t.Fatal("GetLimits() = nil error, want typed error")
			}

			apiErr, ok := AsError(err)
			if !ok {
				t.Fatalf("AsError() failed for %v", err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestClient_IsInsufficientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code":"insufficient_balance","message":"serve almeno 1 moneta"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.TriggerLimitRefresh(context.Background(), "bud-1")
	if !IsInsufficientBalance(err) {
		t.Errorf("IsInsufficientBalance(%v) = false, want true", err)
	}
	apiErr, _ := AsError(err)
	if apiErr.Message != "serve almeno 1 moneta" {
		t.Errorf("Message = %q, want server-provided text", apiErr.Message)
	}
}

func TestClient_ListTransactions_SendsPaging(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithToken("t0ken"))
	params := url.Values{"type": {"expense"}}
	items, err := client.ListTransactions(context.Background(), 25, 50, params)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
	if gotQuery.Get("limit") != "25" || gotQuery.Get("offset") != "50" {
		t.Errorf("paging query = %v, want limit=25 offset=50", gotQuery)
	}
	if gotQuery.Get("type") != "expense" {
		t.Errorf("type filter not forwarded: %v", gotQuery)
	}
}

func TestClient_UpdateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.URL.Path != "/budgets/bud-1/limits/lim-9" {
			t.Errorf("path = %s, want /budgets/bud-1/limits/lim-9", r.URL.Path)
		}
		var sent core.CategoryLimit
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if sent.Amount.Cents != 12500 {
			t.Errorf("sent amount = %d cents, want 12500", sent.Amount.Cents)
		}
		_, _ = w.Write([]byte(`{"budgetId":"bud-1","limits":[{"id":"lim-9","category":"spesa","amount":{"Cents":12500}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	snapshot, err := client.UpdateLimit(context.Background(), "bud-1", core.CategoryLimit{
		ID:       "lim-9",
		Category: "spesa",
		Amount:   core.Money{Cents: 12500},
	})
	if err != nil {
		t.Fatalf("UpdateLimit() error = %v", err)
	}
	if len(snapshot.Limits) != 1 || snapshot.Limits[0].Amount.Cents != 12500 {
		t.Errorf("snapshot = %+v, want single lim-9 at 12500 cents", snapshot)
	}
}

func TestClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallet/balance" {
			t.Errorf("path = %s, want /wallet/balance", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"balance":7}`))
	}))
	defer srv.Close()

	balance, err := NewClient(srv.URL).Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 7 {
		t.Errorf("Balance() = %d, want 7", balance)
	}
}
