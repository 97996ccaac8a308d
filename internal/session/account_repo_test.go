package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/hitoshi/newstalk/internal/repository"
)

// memAccountRepo はメモリ上のAccountRepository。subscription.Serviceを実物のまま使うテストで利用する。
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[string]*model.Account)}
}

func (r *memAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.Email]; ok {
		return errors.New("account already exists")
	}
	cp := *account
	r.accounts[account.Email] = &cp
	return nil
}

func (r *memAccountRepo) UpdateUsage(ctx context.Context, email string, period, total float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return repository.ErrNotFound
	}
	a.PeriodMinutes = period
	a.TotalMinutes = total
	a.LastUsageAt = &at
	return nil
}

func (r *memAccountRepo) UpdatePlan(ctx context.Context, email string, plan model.Plan, status model.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return repository.ErrNotFound
	}
	a.Plan = plan
	a.Status = status
	return nil
}

func (r *memAccountRepo) ResetPeriod(ctx context.Context, periodStart time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.accounts {
		if a.PeriodMinutes != 0 {
			a.PeriodMinutes = 0
			n++
		}
	}
	return n, nil
}

var _ repository.AccountRepository = (*memAccountRepo)(nil)
