package core

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// CategoryLimit is one recommended spending cap inside a LimitSet.
type CategoryLimit struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Amount    Money     `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LimitSet is the snapshot of a budget's recommended category limits.
// It is the resource polled while a recomputation job runs on the backend.
type LimitSet struct {
	BudgetID string          `json:"budgetId"`
	Limits   []CategoryLimit `json:"limits"`
}

// Fingerprint derives a change-detection signature from the mutable fields
// of the set. Entries are sorted before joining, so permuting Limits yields
// the same string. An empty set yields the empty string.
//
// The signature is advisory: a backend write that touches none of the
// fingerprinted fields is indistinguishable from no write at all.
func (s LimitSet) Fingerprint() string {
	if len(s.Limits) == 0 {
		return ""
	}
	parts := make([]string, len(s.Limits))
	for i, l := range s.Limits {
		parts[i] = l.ID + "|" +
			strconv.FormatInt(l.UpdatedAt.UnixMilli(), 10) + "|" +
			strconv.FormatInt(l.Amount.Cents, 10)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
