package core

import (
	"strings"
	"testing"
	"time"
)

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		ID:          "tx-1",
		Date:        time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC),
		Description: "Supermercato",
		Amount:      Money{Cents: 4350},
		Type:        Expense,
		Category:    "Spesa",
	}

	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"valid", func(tx *Transaction) {}, nil},
		{"empty description", func(tx *Transaction) { tx.Description = "   " }, ErrEmptyDescription},
		{"zero amount", func(tx *Transaction) { tx.Amount.Cents = 0 }, ErrInvalidAmount},
		{"unknown type", func(tx *Transaction) { tx.Type = "refund" }, ErrInvalidEntryType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_Validate_LongDescription(t *testing.T) {
	tx := Transaction{
		Description: strings.Repeat("x", 201),
		Amount:      Money{Cents: 100},
		Type:        Expense,
	}
	if err := tx.Validate(); err == nil {
		t.Error("Validate() = nil, want error for over-long description")
	}
}

func TestMoney_Format(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "€0,00"},
		{5, "€0,05"},
		{1234, "€12,34"},
		{-1234, "-€12,34"},
		{100000, "€1000,00"},
	}

	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).Format(); got != tt.want {
			t.Errorf("Money{%d}.Format() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
