package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

const defaultPageSize = 50

var strainOrder = map[model.StrainSort]string{
	model.SortPopularity: "sales_30d DESC, cu.strain ASC",
	model.SortRecency:    "newest_at DESC, cu.strain ASC",
	model.SortRating:     "rating DESC NULLS LAST, cu.strain ASC",
	model.SortSales:      "sales_total DESC, cu.strain ASC",
}

// ListStrains returns grouped-by-strain summaries of undispensed units
// with per-tier counts, honoring filter, sort and pagination. Tier
// counts come from a second grouped query over the returned strains.
func (r *CatalogRepo) ListStrains(ctx context.Context, f model.StrainFilter) ([]model.StrainSummary, error) {
	where := []string{"NOT cu.dispensed"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Category != "" {
		where = append(where, "cu.category = "+arg(string(f.Category)))
	}
	if f.Search != "" {
		where = append(where, "cu.strain ILIKE "+arg("%"+f.Search+"%"))
	}
	if f.MinPotency != nil {
		where = append(where, "cu.potency >= "+arg(*f.MinPotency))
	}
	if f.MaxPotency != nil {
		where = append(where, "cu.potency <= "+arg(*f.MaxPotency))
	}

	order, ok := strainOrder[f.Sort]
	if !ok {
		order = strainOrder[model.SortPopularity]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := `
SELECT cu.strain, cu.category,
  MIN(cu.potency) AS min_potency,
  MAX(cu.potency) AS max_potency,
  MAX(cu.created_at) AS newest_at,
  AVG(cu.rating) AS rating,
  COALESCE(MAX(s.sales_total), 0) AS sales_total,
  COALESCE(MAX(s.sales_30d), 0) AS sales_30d
FROM catalog_units cu
LEFT JOIN (
  SELECT c2.strain,
    COUNT(*) AS sales_total,
    COUNT(*) FILTER (WHERE d.created_at > now() - interval '30 days') AS sales_30d
  FROM distribution_units du
  JOIN catalog_units c2 ON c2.id = du.unit_id
  JOIN distributions d ON d.id = du.distribution_id
  GROUP BY c2.strain
) s ON s.strain = cu.strain
WHERE ` + strings.Join(where, " AND ") + `
GROUP BY cu.strain, cu.category
ORDER BY ` + order + `
LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrainSummary
	var names []string
	for rows.Next() {
		var (
			sum       model.StrainSummary
			salesAll  int
			sales30d  int
		)
		if err = rows.Scan(
			&sum.Strain, &sum.Category, &sum.MinPotency, &sum.MaxPotency,
			&sum.NewestAt, &sum.Rating, &salesAll, &sales30d,
		); err != nil {
			return nil, err
		}
		sum.SalesCount = salesAll
		out = append(out, sum)
		names = append(names, sum.Strain)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	tiers, err := r.tierCounts(ctx, names)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tiers = tiers[out[i].Strain]
	}
	return out, nil
}

// tierCounts loads per-weight availability for the given strains.
func (r *CatalogRepo) tierCounts(ctx context.Context, strains []string) (map[string][]model.TierCount, error) {
	const q = `
SELECT strain, mass_g, COUNT(*)
FROM catalog_units
WHERE NOT dispensed AND strain = ANY($1)
GROUP BY strain, mass_g
ORDER BY strain, mass_g`
	rows, err := r.db.Pool.Query(ctx, q, strains)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]model.TierCount{}
	for rows.Next() {
		var (
			strain string
			tc     model.TierCount
		)
		if err = rows.Scan(&strain, &tc.MassGrams, &tc.Available); err != nil {
			return nil, err
		}
		out[strain] = append(out[strain], tc)
	}
	return out, rows.Err()
}

const unitCols = `id, batch_id, strain, category, mass_g, potency, price, dispensed`

// UnitsByStrain returns all undispensed units of one strain across batches.
func (r *CatalogRepo) UnitsByStrain(ctx context.Context, strain string) ([]model.CatalogUnit, error) {
	const q = `
SELECT ` + unitCols + `
FROM catalog_units
WHERE NOT dispensed AND strain=$1
ORDER BY mass_g, batch_id, id`
	rows, err := r.db.Pool.Query(ctx, q, strain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CatalogUnit
	for rows.Next() {
		var u model.CatalogUnit
		if err = rows.Scan(&u.ID, &u.BatchID, &u.Strain, &u.Category, &u.MassGrams, &u.PotencyPercent, &u.Price, &u.Dispensed); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUnit returns a single unit by id.
func (r *CatalogRepo) GetUnit(ctx context.Context, id uuid.UUID) (*model.CatalogUnit, error) {
	const q = `SELECT ` + unitCols + ` FROM catalog_units WHERE id=$1`
	var u model.CatalogUnit
	err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.BatchID, &u.Strain, &u.Category, &u.MassGrams, &u.PotencyPercent, &u.Price, &u.Dispensed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
