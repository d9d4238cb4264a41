package selection

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/quota"
)

func fptr(v float64) *float64 { return &v }

func newUnit(strain string, mass float64, price *float64) model.CatalogUnit {
	return model.CatalogUnit{
		ID:        uuid.Must(uuid.NewV4()),
		BatchID:   "B-001",
		Strain:    strain,
		Category:  model.CategoryFlower,
		MassGrams: mass,
		Price:     price,
	}
}

func snap(daily, monthly, dailyUsed, monthUsed float64) model.QuotaSnapshot {
	return model.QuotaSnapshot{
		DailyLimitGrams:    daily,
		MonthlyLimitGrams:  monthly,
		DailyConsumedGrams: dailyUsed,
		MonthConsumedGrams: monthUsed,
	}
}

func TestEngine_Add_AcceptsAndAggregates(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false)

	a := newUnit("Northern Mist", 5, fptr(30))
	b := newUnit("Northern Mist", 5, fptr(35))

	_, vs := e.Add(a)
	require.Nil(t, vs)
	_, vs = e.Add(b)
	require.Nil(t, vs)

	require.InDelta(t, 10, e.TotalMass(), 1e-9)
	require.InDelta(t, 65, e.TotalPrice(), 1e-9)
	require.Len(t, e.Items(), 2)
}

func TestEngine_Add_RejectionDoesNotMutate(t *testing.T) {
	e := New(snap(25, 50, 20, 0), false)

	_, vs := e.Add(newUnit("Northern Mist", 4, nil))
	require.Nil(t, vs)

	_, vs = e.Add(newUnit("Northern Mist", 2, nil))
	require.Len(t, vs, 1)
	require.Equal(t, quota.DailyLimitExceeded, vs[0].Code)
	require.InDelta(t, 1.0, vs[0].RemainingGrams, 1e-9)

	// State untouched by the rejection.
	require.InDelta(t, 4, e.TotalMass(), 1e-9)
	require.Len(t, e.Items(), 1)
}

func TestEngine_Add_SameUnitTwiceIsNoStock(t *testing.T) {
	e := New(snap(100, 100, 0, 0), false)
	u := newUnit("Dune Haze", 5, nil)

	_, vs := e.Add(u)
	require.Nil(t, vs)
	_, vs = e.Add(u)
	require.Len(t, vs, 1)
	require.Equal(t, quota.NoStock, vs[0].Code)
}

func TestEngine_RemoveReAdd_RoundTripsMass(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false)
	u := newUnit("Dune Haze", 7, fptr(40))

	_, vs := e.Add(u)
	require.Nil(t, vs)
	before := e.TotalMass()

	require.True(t, e.Remove(u.ID))
	require.Zero(t, e.TotalMass())

	_, vs = e.Add(u)
	require.Nil(t, vs)
	require.InDelta(t, before, e.TotalMass(), 1e-9)
}

func TestEngine_Remove_Unknown(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false)
	require.False(t, e.Remove(uuid.Must(uuid.NewV4())))
}

func TestEngine_Clear_KeepsShortlist(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false)
	_, _ = e.Add(newUnit("Dune Haze", 5, nil))
	require.NoError(t, e.AddToShortlist("Velvet Era"))

	e.Clear()
	require.Empty(t, e.Items())
	require.Equal(t, []string{"Velvet Era"}, e.Shortlist())
}

func TestEngine_PotencyCap_RestrictedRecipient(t *testing.T) {
	s := snap(100, 100, 0, 0)
	s.PotencyCapPercent = fptr(10)
	e := New(s, true)

	hot := newUnit("Solar Flare", 2, nil)
	hot.PotencyPercent = fptr(15)

	_, vs := e.Add(hot)
	require.Len(t, vs, 1)
	require.Equal(t, quota.PotencyLimitExceeded, vs[0].Code)

	// Same unit, non-restricted recipient.
	e2 := New(s, false)
	_, vs = e2.Add(hot)
	require.Nil(t, vs)
}

func TestEngine_QuotaNeverExceeded_AcrossSequence(t *testing.T) {
	s := snap(12, 20, 3, 5)
	e := New(s, false)

	masses := []float64{5, 5, 5, 2, 2, 2, 1, 1, 1}
	for _, m := range masses {
		e.Add(newUnit("Dune Haze", m, nil))
	}

	require.LessOrEqual(t, s.DailyConsumedGrams+e.TotalMass(), s.DailyLimitGrams)
	require.LessOrEqual(t, s.MonthConsumedGrams+e.TotalMass(), s.MonthlyLimitGrams)
	require.True(t, e.WithinLimits())
}

func TestEngine_GroupByStrainAndWeight(t *testing.T) {
	e := New(snap(100, 100, 0, 0), false)

	units := []model.CatalogUnit{
		newUnit("Dune Haze", 5, nil),
		newUnit("Dune Haze", 5, nil),
		newUnit("Dune Haze", 10, nil),
		newUnit("Dune Haze", 5, nil),
	}
	_, vs := e.Add(units[0])
	require.Nil(t, vs)

	tiers := e.GroupByStrainAndWeight(units)
	require.Len(t, tiers, 2)
	require.InDelta(t, 5, tiers[0].MassGrams, 1e-9)
	require.Equal(t, 1, tiers[0].Selected)
	require.Equal(t, 2, tiers[0].Remaining())
	require.InDelta(t, 10, tiers[1].MassGrams, 1e-9)
	require.Equal(t, 1, tiers[1].Remaining())
}

func TestEngine_AddFromTier_PicksNextFreeUnit(t *testing.T) {
	e := New(snap(100, 100, 0, 0), false)
	units := []model.CatalogUnit{
		newUnit("Dune Haze", 5, fptr(25)),
		newUnit("Dune Haze", 5, fptr(25)),
	}
	tiers := e.GroupByStrainAndWeight(units)
	require.Len(t, tiers, 1)

	it, vs := e.AddFromTier(tiers[0])
	require.Nil(t, vs)
	first := it.Unit.ID

	// Recompute the tier view and add again: the other unit is picked.
	tiers = e.GroupByStrainAndWeight(units)
	it, vs = e.AddFromTier(tiers[0])
	require.Nil(t, vs)
	require.NotEqual(t, first, it.Unit.ID)
}

func TestEngine_AddFromTier_NoStock_IndependentOfQuota(t *testing.T) {
	// Tier with zero remaining rejects with NO_STOCK even though quota
	// would allow the mass.
	e := New(snap(100, 100, 0, 0), false)
	empty := Tier{Strain: "Dune Haze", MassGrams: 10}

	_, vs := e.AddFromTier(empty)
	require.Len(t, vs, 1)
	require.Equal(t, quota.NoStock, vs[0].Code)
}

func TestEngine_AddFromTier_NoStockAndQuota_Cumulative(t *testing.T) {
	// Reason codes are computed independently and reported together.
	e := New(snap(5, 100, 4, 0), false)
	empty := Tier{Strain: "Dune Haze", MassGrams: 10}

	_, vs := e.AddFromTier(empty)
	require.Len(t, vs, 2)
	require.Equal(t, quota.NoStock, vs[0].Code)
	require.Equal(t, quota.DailyLimitExceeded, vs[1].Code)
}

func TestEngine_Shortlist_BoundedAndDeduplicated(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false, WithShortlistCap(2))

	require.NoError(t, e.AddToShortlist("A"))
	require.NoError(t, e.AddToShortlist("A")) // duplicate is a no-op
	require.NoError(t, e.AddToShortlist("B"))
	require.ErrorIs(t, e.AddToShortlist("C"), errs.ErrShortlistFull)

	e.RemoveFromShortlist("A")
	require.Equal(t, []string{"B"}, e.Shortlist())
	require.NoError(t, e.AddToShortlist("C"))
}

func TestEngine_ShortlistHasNoQuotaEffect(t *testing.T) {
	e := New(snap(25, 50, 0, 0), false)
	require.NoError(t, e.AddToShortlist("Dune Haze"))

	_, vs := e.Add(newUnit("Dune Haze", 25, nil))
	require.Nil(t, vs)
	require.InDelta(t, 25, e.TotalMass(), 1e-9)
}

func TestEngine_TotalPrice_NilPriceContributesZero(t *testing.T) {
	e := New(snap(100, 100, 0, 0), false)
	_, _ = e.Add(newUnit("Dune Haze", 5, fptr(30)))
	_, _ = e.Add(newUnit("Dune Haze", 5, nil))

	require.InDelta(t, 30, e.TotalPrice(), 1e-9)
}
