package filter

import (
	"net/url"
	"time"
)

const (
	ScopeAll    Scope = "all"
	ScopeOwn    Scope = "own"
	ScopeShared Scope = "shared"
)

const (
	TypeAll      TypeFilter = "all"
	TypeIncome   TypeFilter = "income"
	TypeExpense  TypeFilter = "expense"
	TypeTransfer TypeFilter = "transfer"
)

const (
	RangeAll    DateRange = "all"
	RangeToday  DateRange = "today"
	RangeWeek   DateRange = "week"
	RangeMonth  DateRange = "month"
	RangeYear   DateRange = "year"
	RangeCustom DateRange = "custom"
)

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// DefaultPageSize is the fixed page size of every list view.
const DefaultPageSize = 25

type (
	Scope         string
	TypeFilter    string
	DateRange     string
	SortDirection string

	// Spec describes how a list view is currently sliced. It is persisted
	// as JSON under a per-view key and reloaded across sessions.
	Spec struct {
		Scope       Scope         `json:"scope"`
		Type        TypeFilter    `json:"type"`
		Range       DateRange     `json:"range"`
		CustomStart time.Time     `json:"customStart"`
		CustomEnd   time.Time     `json:"customEnd"`
		SortColumn  string        `json:"sortColumn"`
		SortDir     SortDirection `json:"sortDir"`
		Page        int           `json:"page"`
		PageSize    int           `json:"pageSize"`
	}

	// Bounds is a resolved, possibly open-ended date window.
	Bounds struct {
		Start time.Time
		End   time.Time
	}
)

// DefaultSpec is the spec used when nothing (or garbage) is persisted.
func DefaultSpec() Spec {
	return Spec{
		Scope:    ScopeAll,
		Type:     TypeAll,
		Range:    RangeAll,
		SortDir:  SortDesc,
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// normalize repairs a spec loaded from storage so a stale or hand-edited
// value can never produce an unusable view.
func (s Spec) normalize() Spec {
	switch s.Scope {
	case ScopeAll, ScopeOwn, ScopeShared:
	default:
		s.Scope = ScopeAll
	}
	switch s.Type {
	case TypeAll, TypeIncome, TypeExpense, TypeTransfer:
	default:
		s.Type = TypeAll
	}
	switch s.Range {
	case RangeAll, RangeToday, RangeWeek, RangeMonth, RangeYear, RangeCustom:
	default:
		s.Range = RangeAll
	}
	if s.SortDir != SortAsc && s.SortDir != SortDesc {
		s.SortDir = SortDesc
	}
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	return s
}

// SetScope returns the spec with the ownership dimension changed and the
// page reset to 1.
func (s Spec) SetScope(scope Scope) Spec {
	s.Scope = scope
	s.Page = 1
	return s
}

func (s Spec) SetType(t TypeFilter) Spec {
	s.Type = t
	s.Page = 1
	return s
}

func (s Spec) SetRange(r DateRange) Spec {
	s.Range = r
	s.Page = 1
	return s
}

// SetCustomBounds switches to the custom range with the given window. A zero
// bound leaves that side open.
func (s Spec) SetCustomBounds(start, end time.Time) Spec {
	s.Range = RangeCustom
	s.CustomStart = start
	s.CustomEnd = end
	s.Page = 1
	return s
}

// SetPage changes only the page; every other dimension is untouched.
func (s Spec) SetPage(page int) Spec {
	if page < 1 {
		page = 1
	}
	s.Page = page
	return s
}

// ToggleSort applies the table-header click rule: the active column flips
// direction, a different column becomes active ascending. Either resets the
// page to 1.
func (s Spec) ToggleSort(column string) Spec {
	if s.SortColumn == column {
		if s.SortDir == SortAsc {
			s.SortDir = SortDesc
		} else {
			s.SortDir = SortAsc
		}
	} else {
		s.SortColumn = column
		s.SortDir = SortAsc
	}
	s.Page = 1
	return s
}

// DateBounds resolves the spec's date dimension into concrete instants.
// Deterministic for a given (spec, now); RangeAll yields zero bounds.
func (s Spec) DateBounds(now time.Time) Bounds {
	switch s.Range {
	case RangeToday:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return Bounds{Start: midnight, End: midnight.AddDate(0, 0, 1)}
	case RangeWeek:
		return Bounds{Start: now.AddDate(0, 0, -7), End: now}
	case RangeMonth:
		return Bounds{Start: now.AddDate(0, 0, -30), End: now}
	case RangeYear:
		return Bounds{Start: now.AddDate(0, 0, -365), End: now}
	case RangeCustom:
		return Bounds{Start: s.CustomStart, End: s.CustomEnd}
	}
	return Bounds{}
}

// Query flattens the spec into backend query parameters. Dimensions with the
// "all" sentinel are omitted entirely; the backend treats absence as "no
// filter on this dimension".
func (s Spec) Query(now time.Time) url.Values {
	q := url.Values{}
	if s.Scope != ScopeAll {
		q.Set("scope", string(s.Scope))
	}
	if s.Type != TypeAll {
		q.Set("type", string(s.Type))
	}
	if s.Range != RangeAll {
		bounds := s.DateBounds(now)
		if !bounds.Start.IsZero() {
			q.Set("from", bounds.Start.UTC().Format(time.RFC3339))
		}
		if !bounds.End.IsZero() {
			q.Set("to", bounds.End.UTC().Format(time.RFC3339))
		}
	}
	if s.SortColumn != "" {
		q.Set("sort", s.SortColumn)
		q.Set("dir", string(s.SortDir))
	}
	return q
}
