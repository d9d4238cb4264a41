package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

// DistributionRepo implements DistributionRepository using PostgreSQL.
type DistributionRepo struct{ db *DB }

// NewDistributionRepo constructs a distribution repository.
func NewDistributionRepo(db *DB) *DistributionRepo { return &DistributionRepo{db: db} }

// Create records the distribution, claims its units and appends the
// recipient's consumption entry in a single transaction. A unit already
// dispensed by a concurrent session aborts the whole transaction.
func (r *DistributionRepo) Create(
	ctx context.Context, d model.DistributionRecord,
) (rec model.DistributionRecord, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.DistributionRecord{}, err
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

	if d.ID == uuid.Nil {
		if d.ID, err = uuid.NewV4(); err != nil {
			return model.DistributionRecord{}, err
		}
	}

	const ins = `
INSERT INTO distributions (id, recipient_id, staff_id, total_grams, total_price, notes)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING created_at`
	var createdAt time.Time
	if err = tx.QueryRow(ctx, ins,
		d.ID, d.RecipientID, d.StaffID, d.TotalGrams, d.TotalPrice, d.Notes,
	).Scan(&createdAt); err != nil {
		return model.DistributionRecord{}, err
	}

	const insUnit = `INSERT INTO distribution_units (distribution_id, unit_id, position) VALUES ($1,$2,$3)`
	for i, unitID := range d.UnitIDs {
		if _, err = tx.Exec(ctx, insUnit, d.ID, unitID, i); err != nil {
			return model.DistributionRecord{}, err
		}
	}

	const claim = `UPDATE catalog_units SET dispensed=true WHERE id = ANY($1) AND NOT dispensed`
	tag, execErr := tx.Exec(ctx, claim, d.UnitIDs)
	if execErr != nil {
		err = execErr
		return model.DistributionRecord{}, err
	}
	if int(tag.RowsAffected()) != len(d.UnitIDs) {
		err = fmt.Errorf("claim units: %d of %d still available", tag.RowsAffected(), len(d.UnitIDs))
		return model.DistributionRecord{}, err
	}

	const insCons = `
INSERT INTO consumption_entries (member_id, grams, distribution_id, occurred_at)
VALUES ($1,$2,$3,$4)`
	if _, err = tx.Exec(ctx, insCons, d.RecipientID, d.TotalGrams, d.ID, createdAt); err != nil {
		return model.DistributionRecord{}, err
	}

	d.CreatedAt = createdAt
	return d, nil
}
