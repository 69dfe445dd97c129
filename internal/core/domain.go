package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Income   EntryType = "income"
	Expense  EntryType = "expense"
	Transfer EntryType = "transfer"
)

type (
	EntryType string

	Money struct {
		Cents int64
	}

	// Transaction is one row of a list view as returned by the backend.
	Transaction struct {
		ID          string    `json:"id"`
		Date        time.Time `json:"date"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Type        EntryType `json:"type"`
		Category    string    `json:"category"`
		OwnerID     string    `json:"ownerId"`
		Shared      bool      `json:"shared"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidEntryType = errors.New("invalid entry type")
)

func (t EntryType) Validate() error {
	switch t {
	case Income, Expense, Transfer:
		return nil
	}
	return ErrInvalidEntryType
}

func (m Money) Validate() error {
	if m.Cents == 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Euros returns the euro value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// Format renders cents as a Euro currency string (e.g., "€12,34").
func (m Money) Format() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "," + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-€" + s
	}
	return "€" + s
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return t.Type.Validate()
}
