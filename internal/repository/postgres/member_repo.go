package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/repository"
)

// MemberRepo implements MemberRepository using PostgreSQL.
type MemberRepo struct{ db *DB }

// NewMemberRepo constructs a member repository.
func NewMemberRepo(db *DB) *MemberRepo { return &MemberRepo{db: db} }

const memberCols = `id, name, credential, staff, restricted_age, balance,
daily_limit_g, monthly_limit_g, potency_cap, created_at`

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.ID, &m.Name, &m.Credential, &m.Staff, &m.RestrictedAge, &m.Balance,
		&m.DailyLimitGrams, &m.MonthlyLimitGrams, &m.PotencyCapPercent, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetByID returns a member account by id.
func (r *MemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Member, error) {
	const q = `SELECT ` + memberCols + ` FROM members WHERE id=$1`
	return scanMember(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByCredential resolves the reader's credential name to an account.
func (r *MemberRepo) GetByCredential(ctx context.Context, credential string) (*model.Member, error) {
	const q = `SELECT ` + memberCols + ` FROM members WHERE credential=$1`
	return scanMember(r.db.Pool.QueryRow(ctx, q, credential))
}

// ConsumptionSummary sums distributed mass since the day and month boundaries.
func (r *MemberRepo) ConsumptionSummary(
	ctx context.Context, memberID uuid.UUID, dayStart, monthStart time.Time,
) (repository.Consumption, error) {
	const q = `
SELECT
  COALESCE(SUM(grams) FILTER (WHERE occurred_at >= $2), 0),
  COALESCE(SUM(grams), 0)
FROM consumption_entries
WHERE member_id=$1 AND occurred_at >= $3`
	var c repository.Consumption
	if err := r.db.Pool.QueryRow(ctx, q, memberID, dayStart, monthStart).
		Scan(&c.DailyGrams, &c.MonthlyGrams); err != nil {
		return repository.Consumption{}, err
	}
	return c, nil
}

// AdjustBalance applies a signed amount and records the adjustment
// against the distribution, atomically.
func (r *MemberRepo) AdjustBalance(
	ctx context.Context, memberID uuid.UUID, amount float64, distributionID uuid.UUID,
) (newBalance float64, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `UPDATE members SET balance = balance + $2 WHERE id=$1 RETURNING balance`
	if err = tx.QueryRow(ctx, upd, memberID, amount).Scan(&newBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}

	const ins = `
INSERT INTO balance_adjustments (member_id, amount, distribution_id)
VALUES ($1,$2,$3)`
	if _, err = tx.Exec(ctx, ins, memberID, amount, distributionID); err != nil {
		return 0, err
	}
	return newBalance, nil
}
