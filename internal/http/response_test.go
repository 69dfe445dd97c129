package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bilancio/internal/notify"
)

func TestResponseBuilder_DataEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()

	NewResponse().
		Data(map[string]string{"budgetId": "b1"}).
		Notice(notify.Success("Limiti di spesa aggiornati")).
		Write(rec)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	var env struct {
		Data   map[string]string `json:"data"`
		Error  string            `json:"error"`
		Notice *struct {
			Level      string `json:"level"`
			Message    string `json:"message"`
			DurationMs int64  `json:"durationMs"`
		} `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}

	if env.Data["budgetId"] != "b1" {
		t.Errorf("data.budgetId = %q, want b1", env.Data["budgetId"])
	}
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
	if env.Notice == nil {
		t.Fatal("notice missing")
	}
	if env.Notice.Level != "success" {
		t.Errorf("notice.level = %q, want success", env.Notice.Level)
	}
	if env.Notice.DurationMs != notify.DurationDefault.Milliseconds() {
		t.Errorf("notice.durationMs = %d, want %d", env.Notice.DurationMs, notify.DurationDefault.Milliseconds())
	}
}

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(http.StatusPaymentRequired, "Saldo insufficiente").Write(rec)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}

	var env struct {
		Error  string `json:"error"`
		Notice *struct {
			Level string `json:"level"`
		} `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if env.Error != "Saldo insufficiente" {
		t.Errorf("error = %q", env.Error)
	}
	if env.Notice == nil || env.Notice.Level != "error" {
		t.Error("error notice missing or wrong level")
	}
}

func TestResponseBuilder_CustomHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Header("Retry-After", "60").Status(http.StatusTooManyRequests).Write(rec)

	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
