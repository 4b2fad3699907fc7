package memory

import (
	"context"
	"sync"
	"time"

	"imagebot/internal/domain"
)

// Accounts stores messenger routing data keyed by account id.
type Accounts struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Account
	byChat map[int64]int64
}

func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[int64]*domain.Account), byChat: make(map[int64]int64)}
}

func (a *Accounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (a *Accounts) Ensure(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.byChat[account.ChatID]; ok {
		existing := a.byID[id]
		if account.Locale != "" {
			existing.Locale = account.Locale
		}
		existing.UpdatedAt = time.Now()
		out := *existing
		return &out, nil
	}
	a.nextID++
	stored := *account
	stored.ID = a.nextID
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	a.byID[stored.ID] = &stored
	a.byChat[stored.ChatID] = stored.ID
	out := stored
	return &out, nil
}

var _ domain.AccountRepository = (*Accounts)(nil)
