package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
)

func TestCatalogRepo_UnitsByStrain(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())
	potency := 18.5
	price := 32.0

	mock.ExpectQuery(`SELECT .+ FROM catalog_units\s+WHERE NOT dispensed AND strain=\$1`).
		WithArgs("Dune Haze").
		WillReturnRows(pgxmock.NewRows([]string{"id", "batch_id", "strain", "category", "mass_g", "potency", "price", "dispensed"}).
			AddRow(a, "B-17", "Dune Haze", model.CategoryFlower, 5.0, &potency, &price, false).
			AddRow(b, "B-18", "Dune Haze", model.CategoryFlower, 10.0, nil, nil, false))

	units, err := r.UnitsByStrain(context.Background(), "Dune Haze")
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, a, units[0].ID)
	require.InDelta(t, 18.5, *units[0].PotencyPercent, 1e-9)
	require.Nil(t, units[1].Price)
}

func TestCatalogRepo_GetUnit_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT .+ FROM catalog_units WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetUnit(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCatalogRepo_ListStrains_DefaultsAndTiers(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT cu\.strain, cu\.category`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"strain", "category", "min_potency", "max_potency", "newest_at", "rating", "sales_total", "sales_30d",
		}).AddRow("Dune Haze", model.CategoryFlower, nil, nil, now, nil, 7, 3))

	mock.ExpectQuery(`SELECT strain, mass_g, COUNT\(\*\)`).
		WithArgs([]string{"Dune Haze"}).
		WillReturnRows(pgxmock.NewRows([]string{"strain", "mass_g", "count"}).
			AddRow("Dune Haze", 5.0, 3).
			AddRow("Dune Haze", 10.0, 1))

	out, err := r.ListStrains(context.Background(), model.StrainFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Dune Haze", out[0].Strain)
	require.Equal(t, 7, out[0].SalesCount)
	require.Len(t, out[0].Tiers, 2)
	require.Equal(t, 3, out[0].Tiers[0].Available)
}

func TestCatalogRepo_ListStrains_FilterArgsOrdered(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCatalogRepo(db)

	minPot := 10.0
	mock.ExpectQuery(`SELECT cu\.strain, cu\.category`).
		WithArgs(string(model.CategoryFlower), "%haze%", minPot, 20, 40).
		WillReturnRows(pgxmock.NewRows([]string{
			"strain", "category", "min_potency", "max_potency", "newest_at", "rating", "sales_total", "sales_30d",
		}))

	out, err := r.ListStrains(context.Background(), model.StrainFilter{
		Category:   model.CategoryFlower,
		Search:     "haze",
		MinPotency: &minPot,
		Sort:       model.SortRecency,
		Limit:      20,
		Offset:     40,
	})
	require.NoError(t, err)
	require.Empty(t, out)
}
