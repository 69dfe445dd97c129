package events

import (
	"encoding/json"
	"time"
)

// RefreshRequested asks a worker to run a limit-refresh job for a budget.
type RefreshRequested struct {
	BudgetID    string    `json:"budgetId"`
	RequestedBy string    `json:"requestedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

// RefreshCompleted reports the terminal state of a refresh job so other
// processes can invalidate their cached snapshots.
type RefreshCompleted struct {
	BudgetID  string    `json:"budgetId"`
	Outcome   string    `json:"outcome"`
	ElapsedMs int64     `json:"elapsedMs"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRefreshRequested(budgetID, requestedBy string) *RefreshRequested {
	return &RefreshRequested{
		BudgetID:    budgetID,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

func (m *RefreshRequested) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshRequestedFromJSON(data []byte) (*RefreshRequested, error) {
	var msg RefreshRequested
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *RefreshCompleted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshCompletedFromJSON(data []byte) (*RefreshCompleted, error) {
	var msg RefreshCompleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
