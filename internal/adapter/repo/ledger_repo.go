package repo

import (
	"context"
	"fmt"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/sqlinline"
)

// LedgerPG implements domain.Ledger. Each operation is one statement, so the
// row lock taken by the UPDATE serializes concurrent changes to an account.
type LedgerPG struct {
	sql infra.SQLExecutor
}

func NewLedger(sql infra.SQLExecutor) *LedgerPG {
	return &LedgerPG{sql: sql}
}

// Deduct debits amount or fails with *domain.InsufficientFundsError.
func (l *LedgerPG) Deduct(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := l.sql.QueryRow(ctx, sqlinline.QLedgerDeduct, accountID, amount, memo.Description, memo.TaskID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !infra.IsNoRows(err) {
		return 0, fmt.Errorf("deduct account %d: %w", accountID, err)
	}

	available, err := l.Balance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return 0, &domain.InsufficientFundsError{Required: amount, Available: available}
}

// Refund returns amount to the account. It never fails for balance reasons.
func (l *LedgerPG) Refund(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	return l.add(ctx, domain.EntryRefund, accountID, amount, memo)
}

// Credit adds purchased or granted tokens.
func (l *LedgerPG) Credit(ctx context.Context, accountID, amount int64, memo domain.Memo) (int64, error) {
	return l.add(ctx, domain.EntryCredit, accountID, amount, memo)
}

func (l *LedgerPG) add(ctx context.Context, entry domain.EntryType, accountID, amount int64, memo domain.Memo) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := l.sql.QueryRow(ctx, sqlinline.QLedgerAdd, accountID, amount, string(entry), memo.Description, memo.TaskID).Scan(&balance)
	if err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, fmt.Errorf("%s account %d: %w", entry, accountID, err)
	}
	return balance, nil
}

// Balance returns the current token balance.
func (l *LedgerPG) Balance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	if err := l.sql.QueryRow(ctx, sqlinline.QSelectAccountBalance, accountID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Entries lists the most recent journal rows of an account.
func (l *LedgerPG) Entries(ctx context.Context, accountID int64, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.sql.Query(ctx, sqlinline.QListLedgerEntries, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.AccountID, &entryType, &e.Amount, &e.Description, &e.TaskID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.EntryType(entryType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.Ledger = (*LedgerPG)(nil)
