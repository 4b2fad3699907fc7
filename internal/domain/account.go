package domain

import "time"

// Account holds the spendable token balance of one user.
type Account struct {
	ID        int64
	ChatID    int64
	Locale    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryType tags ledger journal rows.
type EntryType string

const (
	EntryDeduct EntryType = "deduct"
	EntryRefund EntryType = "refund"
	EntryCredit EntryType = "credit"
)

// LedgerEntry describes one balance movement. TaskID is optional because
// the intake deduct happens before the task row exists.
type LedgerEntry struct {
	ID          int64
	AccountID   int64
	Type        EntryType
	Amount      int64
	Description string
	TaskID      *int64
	CreatedAt   time.Time
}

// Memo is the caller-supplied annotation stored alongside a balance change.
type Memo struct {
	Description string
	TaskID      *int64
}

// ForTask builds a memo bound to a task id.
func ForTask(description string, taskID int64) Memo {
	id := taskID
	return Memo{Description: description, TaskID: &id}
}
