package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

func TestDistributionRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDistributionRepo(db)

	distID := uuid.Must(uuid.NewV4())
	recipient := uuid.Must(uuid.NewV4())
	staff := uuid.Must(uuid.NewV4())
	units := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}
	createdAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO distributions \(id, recipient_id, staff_id, total_grams, total_price, notes\)`).
		WithArgs(distID, recipient, staff, 10.0, 65.0, "walk-in").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
	mock.ExpectExec(`INSERT INTO distribution_units \(distribution_id, unit_id, position\)`).
		WithArgs(distID, units[0], 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO distribution_units \(distribution_id, unit_id, position\)`).
		WithArgs(distID, units[1], 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE catalog_units SET dispensed=true WHERE id = ANY\(\$1\) AND NOT dispensed`).
		WithArgs(units).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`INSERT INTO consumption_entries \(member_id, grams, distribution_id, occurred_at\)`).
		WithArgs(recipient, 10.0, distID, createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, err := r.Create(context.Background(), model.DistributionRecord{
		ID:          distID,
		RecipientID: recipient,
		StaffID:     staff,
		UnitIDs:     units,
		TotalGrams:  10.0,
		TotalPrice:  65.0,
		Notes:       "walk-in",
	})
	require.NoError(t, err)
	require.Equal(t, distID, rec.ID)
	require.Equal(t, createdAt, rec.CreatedAt)
}

func TestDistributionRepo_Create_UnitAlreadyDispensed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDistributionRepo(db)

	distID := uuid.Must(uuid.NewV4())
	recipient := uuid.Must(uuid.NewV4())
	staff := uuid.Must(uuid.NewV4())
	units := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO distributions`).
		WithArgs(distID, recipient, staff, 10.0, 65.0, "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO distribution_units`).
		WithArgs(distID, units[0], 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO distribution_units`).
		WithArgs(distID, units[1], 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Another session grabbed one of the units first.
	mock.ExpectExec(`UPDATE catalog_units SET dispensed=true`).
		WithArgs(units).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	_, err := r.Create(context.Background(), model.DistributionRecord{
		ID:          distID,
		RecipientID: recipient,
		StaffID:     staff,
		UnitIDs:     units,
		TotalGrams:  10.0,
		TotalPrice:  65.0,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "claim units")
}

func TestDistributionRepo_Create_GeneratesID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDistributionRepo(db)

	recipient := uuid.Must(uuid.NewV4())
	staff := uuid.Must(uuid.NewV4())
	unit := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO distributions`).
		WithArgs(pgxmock.AnyArg(), recipient, staff, 5.0, 30.0, "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO distribution_units`).
		WithArgs(pgxmock.AnyArg(), unit, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE catalog_units SET dispensed=true`).
		WithArgs([]uuid.UUID{unit}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO consumption_entries`).
		WithArgs(recipient, 5.0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, err := r.Create(context.Background(), model.DistributionRecord{
		RecipientID: recipient,
		StaffID:     staff,
		UnitIDs:     []uuid.UUID{unit},
		TotalGrams:  5.0,
		TotalPrice:  30.0,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, rec.ID)
}
