package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"imagebot/internal/domain"
	"imagebot/internal/sqlinline"
)

func TestLedgerDeductSuccess(t *testing.T) {
	sql := newScriptedSQL()
	sql.on(sqlinline.QLedgerDeduct, func(args []any) pgx.Row {
		if args[0] != int64(9) || args[1] != int64(5) {
			t.Fatalf("unexpected args %v", args)
		}
		return valuesRow{values: []any{int64(5)}}
	})

	balance, err := NewLedger(sql).Deduct(context.Background(), 9, 5, domain.Memo{Description: "generation"})
	if err != nil {
		t.Fatalf("Deduct error: %v", err)
	}
	if balance != 5 {
		t.Fatalf("balance = %d, want 5", balance)
	}
}

func TestLedgerDeductInsufficientFunds(t *testing.T) {
	sql := newScriptedSQL()
	sql.on(sqlinline.QLedgerDeduct, noRows)
	sql.on(sqlinline.QSelectAccountBalance, func([]any) pgx.Row {
		return valuesRow{values: []any{int64(3)}}
	})

	_, err := NewLedger(sql).Deduct(context.Background(), 9, 5, domain.Memo{})
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.Required != 5 || insufficient.Available != 3 {
		t.Fatalf("unexpected error payload %+v", insufficient)
	}
}

func TestLedgerDeductUnknownAccount(t *testing.T) {
	sql := newScriptedSQL()
	sql.on(sqlinline.QLedgerDeduct, noRows)
	sql.on(sqlinline.QSelectAccountBalance, noRows)

	if _, err := NewLedger(sql).Deduct(context.Background(), 1, 5, domain.Memo{}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestLedgerRefundJournalsTask(t *testing.T) {
	sql := newScriptedSQL()
	sql.on(sqlinline.QLedgerAdd, func(args []any) pgx.Row {
		if args[2] != string(domain.EntryRefund) {
			t.Fatalf("entry type = %v, want refund", args[2])
		}
		taskID, ok := args[4].(*int64)
		if !ok || taskID == nil || *taskID != 42 {
			t.Fatalf("task id arg = %v", args[4])
		}
		return valuesRow{values: []any{int64(10)}}
	})

	balance, err := NewLedger(sql).Refund(context.Background(), 9, 5, domain.ForTask("refund", 42))
	if err != nil || balance != 10 {
		t.Fatalf("Refund = %d, %v", balance, err)
	}
}

func TestLedgerRefundUnknownAccount(t *testing.T) {
	sql := newScriptedSQL()
	sql.on(sqlinline.QLedgerAdd, noRows)
	if _, err := NewLedger(sql).Refund(context.Background(), 9, 5, domain.Memo{}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestLedgerRejectsNegativeAmounts(t *testing.T) {
	ledger := NewLedger(newScriptedSQL())
	if _, err := ledger.Deduct(context.Background(), 1, -1, domain.Memo{}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Deduct negative: %v", err)
	}
	if _, err := ledger.Credit(context.Background(), 1, -1, domain.Memo{}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Credit negative: %v", err)
	}
}
