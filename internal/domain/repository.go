package domain

import "context"

// TaskStore persists tasks. Transition is the only mutator after creation:
// it applies the update iff the current status equals from, atomically.
type TaskStore interface {
	Create(ctx context.Context, task *Task) (*Task, error)
	GetByID(ctx context.Context, id int64) (*Task, error)
	Transition(ctx context.Context, id int64, from, to TaskStatus, update TaskUpdate) (*Task, error)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Task, error)
	CountByStatus(ctx context.Context) (map[TaskStatus]int64, error)
}

// Ledger is the per-account token balance. Operations on one account are
// serialized; operations on different accounts are independent.
type Ledger interface {
	Deduct(ctx context.Context, accountID, amount int64, memo Memo) (int64, error)
	Refund(ctx context.Context, accountID, amount int64, memo Memo) (int64, error)
	Credit(ctx context.Context, accountID, amount int64, memo Memo) (int64, error)
	Balance(ctx context.Context, accountID int64) (int64, error)
}

// AccountRepository resolves messenger routing data for an account.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*Account, error)
	Ensure(ctx context.Context, account *Account) (*Account, error)
}
