package memory

import (
	"context"
	"sync"
	"time"

	"imagebot/internal/domain"
)

type account struct {
	mu      sync.Mutex
	balance int64
}

// Ledger keeps balances in memory with one mutex per account, so changes to
// different accounts never contend.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[int64]*account

	journalMu sync.Mutex
	journal   []domain.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[int64]*account)}
}

// Open creates an account with an initial balance, replacing any existing one.
func (l *Ledger) Open(accountID, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[accountID] = &account{balance: balance}
}

func (l *Ledger) get(accountID int64) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (l *Ledger) Deduct(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	acc, err := l.get(accountID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	if acc.balance < amount {
		available := acc.balance
		acc.mu.Unlock()
		return 0, &domain.InsufficientFundsError{Required: amount, Available: available}
	}
	acc.balance -= amount
	balance := acc.balance
	acc.mu.Unlock()

	l.record(accountID, domain.EntryDeduct, -amount, memo)
	return balance, nil
}

func (l *Ledger) Refund(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	return l.add(ctx, domain.EntryRefund, accountID, amount, memo)
}

func (l *Ledger) Credit(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	return l.add(ctx, domain.EntryCredit, accountID, amount, memo)
}

func (l *Ledger) add(ctx context.Context, entry domain.EntryType, accountID, amount int64, memo domain.Memo) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	acc, err := l.get(accountID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	acc.balance += amount
	balance := acc.balance
	acc.mu.Unlock()

	l.record(accountID, entry, amount, memo)
	return balance, nil
}

func (l *Ledger) Balance(ctx context.Context, accountID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	acc, err := l.get(accountID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// Entries returns a copy of the journal for one account in insertion order.
func (l *Ledger) Entries(accountID int64) []domain.LedgerEntry {
	l.journalMu.Lock()
	defer l.journalMu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range l.journal {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) record(accountID int64, entry domain.EntryType, amount int64, memo domain.Memo) {
	l.journalMu.Lock()
	defer l.journalMu.Unlock()
	l.journal = append(l.journal, domain.LedgerEntry{
		ID:          int64(len(l.journal) + 1),
		AccountID:   accountID,
		Type:        entry,
		Amount:      amount,
		Description: memo.Description,
		TaskID:      memo.TaskID,
		CreatedAt:   time.Now(),
	})
}

var _ domain.Ledger = (*Ledger)(nil)
