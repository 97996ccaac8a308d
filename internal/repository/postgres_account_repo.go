package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newstalk/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a := &model.Account{}
	var trialEndsAt, lastUsageAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT email, plan, status, trial_ends_at, period_minutes, total_minutes,
		        last_usage_at, created_at, updated_at
		 FROM accounts WHERE email = $1`,
		email,
	).Scan(&a.Email, &a.Plan, &a.Status, &trialEndsAt, &a.PeriodMinutes, &a.TotalMinutes,
		&lastUsageAt, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	if trialEndsAt.Valid {
		t := trialEndsAt.Time
		a.TrialEndsAt = &t
	}
	if lastUsageAt.Valid {
		t := lastUsageAt.Time
		a.LastUsageAt = &t
	}
	return a, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, plan, status, trial_ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.Email, a.Plan, a.Status, a.TrialEndsAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateUsage は今期・累計の使用分数と最終使用日時を上書きする。
func (r *PostgresAccountRepo) UpdateUsage(ctx context.Context, email string, periodMinutes, totalMinutes float64, lastUsageAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET period_minutes = $2, total_minutes = $3, last_usage_at = $4, updated_at = now()
		 WHERE email = $1`,
		email, periodMinutes, totalMinutes, lastUsageAt,
	)
	if err != nil {
		return fmt.Errorf("使用量の更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "accounts", email)
}

// UpdatePlan はプランと状態を更新する。
func (r *PostgresAccountRepo) UpdatePlan(ctx context.Context, email string, plan model.Plan, status model.SubscriptionStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET plan = $2, status = $3, updated_at = now() WHERE email = $1`,
		email, plan, status,
	)
	if err != nil {
		return fmt.Errorf("プランの更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "accounts", email)
}

// ResetPeriod はperiodStartより前に開始した今期使用量を0に戻す。
// 同じperiodStartで繰り返し実行しても結果は変わらない。
func (r *PostgresAccountRepo) ResetPeriod(ctx context.Context, periodStart time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET period_minutes = 0, period_started_at = $1, updated_at = now()
		 WHERE period_started_at < $1`,
		periodStart,
	)
	if err != nil {
		return 0, fmt.Errorf("今期使用量のリセットに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// requireOneRow は更新対象が存在しなかった場合にErrNotFoundを返す。
func requireOneRow(result sql.Result, table, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, key, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
