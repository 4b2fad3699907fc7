package repo

import (
	"context"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/sqlinline"
)

// AccountRepositoryPG implements domain.AccountRepository.
type AccountRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAccountRepository(sql infra.SQLExecutor) *AccountRepositoryPG {
	return &AccountRepositoryPG{sql: sql}
}

func (r *AccountRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := scanAccount(r.sql.QueryRow(ctx, sqlinline.QSelectAccountByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// Ensure registers the chat if needed. account.Balance is the signup grant
// and is ignored for existing accounts.
func (r *AccountRepositoryPG) Ensure(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	locale := account.Locale
	if locale == "" {
		locale = "ru"
	}
	return scanAccount(r.sql.QueryRow(ctx, sqlinline.QEnsureAccount, account.ChatID, locale, account.Balance))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.ID, &acc.ChatID, &acc.Locale, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}

var _ domain.AccountRepository = (*AccountRepositoryPG)(nil)
