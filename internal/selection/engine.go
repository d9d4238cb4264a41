// Package selection owns the in-progress set of chosen units for one
// kiosk session. Every mutation is gated on the quota validator; the
// engine itself is not safe for concurrent use; the workflow serializes
// access to it.
package selection

import (
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/quota"
)

// DefaultShortlistCap bounds the compare shortlist.
const DefaultShortlistCap = 4

// Engine holds the pending selection and the recipient's quota context.
type Engine struct {
	snap          model.QuotaSnapshot
	restrictedAge bool

	items        []model.SelectionItem
	shortlist    []string
	shortlistCap int

	now func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithShortlistCap overrides the shortlist bound.
func WithShortlistCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.shortlistCap = n
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an engine for one identified recipient.
func New(snap model.QuotaSnapshot, restrictedAge bool, opts ...Option) *Engine {
	e := &Engine{
		snap:          snap,
		restrictedAge: restrictedAge,
		shortlistCap:  DefaultShortlistCap,
		now:           time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Add validates the candidate against the running session total and, on
// acceptance, appends it to the pending set. On rejection it returns the
// violations and performs no mutation. A unit already in the pending set
// counts as out of stock: that physical package is taken.
func (e *Engine) Add(c model.CatalogUnit) (model.SelectionItem, []quota.Violation) {
	var vs []quota.Violation
	if e.holds(c.ID) {
		vs = append(vs, quota.Violation{Code: quota.NoStock})
	}
	res := quota.Validate(c, e.snap, e.TotalMass(), e.restrictedAge)
	vs = append(vs, res.Violations...)
	if len(vs) > 0 {
		return model.SelectionItem{}, vs
	}

	it := model.SelectionItem{Unit: c, AddedAt: e.now()}
	e.items = append(e.items, it)
	return it, nil
}

// AddFromTier picks the next unselected unit of the tier and adds it.
// An empty tier yields NoStock; quota is still evaluated against the
// tier's mass so the caller sees every applicable reason at once.
func (e *Engine) AddFromTier(t Tier) (model.SelectionItem, []quota.Violation) {
	for _, u := range t.Units {
		if !e.holds(u.ID) {
			return e.Add(u)
		}
	}

	vs := []quota.Violation{{Code: quota.NoStock}}
	probe := model.CatalogUnit{Strain: t.Strain, MassGrams: t.MassGrams}
	if res := quota.Validate(probe, e.snap, e.TotalMass(), e.restrictedAge); !res.Accepted {
		vs = append(vs, res.Violations...)
	}
	return model.SelectionItem{}, vs
}

// Remove deletes a unit from the pending set by id. Removal can only
// decrease totals, so no validation runs. Returns false if absent.
func (e *Engine) Remove(unitID uuid.UUID) bool {
	for i, it := range e.items {
		if it.Unit.ID == unitID {
			e.items = append(e.items[:i], e.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the pending set. The shortlist survives: it is a
// browsing aid, not part of the selection.
func (e *Engine) Clear() { e.items = nil }

// Items returns a copy of the pending set in acceptance order.
func (e *Engine) Items() []model.SelectionItem {
	return append([]model.SelectionItem(nil), e.items...)
}

// UnitIDs returns the pending unit ids in acceptance order.
func (e *Engine) UnitIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.items))
	for _, it := range e.items {
		ids = append(ids, it.Unit.ID)
	}
	return ids
}

// TotalMass sums the pending set's mass in grams.
func (e *Engine) TotalMass() float64 {
	var sum float64
	for _, it := range e.items {
		sum += it.Unit.MassGrams
	}
	return sum
}

// TotalPrice sums configured unit prices; units without a price
// contribute nothing.
func (e *Engine) TotalPrice() float64 {
	var sum float64
	for _, it := range e.items {
		if it.Unit.Price != nil {
			sum += *it.Unit.Price
		}
	}
	return sum
}

// WithinLimits recomputes the aggregate headroom check from scratch.
// The Select→Review transition calls this instead of trusting the
// per-add validations, in case limits or consumption changed underneath.
func (e *Engine) WithinLimits() bool {
	total := e.TotalMass()
	return e.snap.DailyConsumedGrams+total <= e.snap.DailyLimitGrams &&
		e.snap.MonthConsumedGrams+total <= e.snap.MonthlyLimitGrams
}

// Snapshot returns the quota snapshot the engine validates against.
func (e *Engine) Snapshot() model.QuotaSnapshot { return e.snap }

func (e *Engine) holds(unitID uuid.UUID) bool {
	for _, it := range e.items {
		if it.Unit.ID == unitID {
			return true
		}
	}
	return false
}

// --- shortlist ---

// Shortlist returns the compared strains in insertion order.
func (e *Engine) Shortlist() []string {
	return append([]string(nil), e.shortlist...)
}

// AddToShortlist records a strain for comparison. The list is bounded;
// a full list rejects further additions so browsing cannot grow state
// without bound. Duplicates are ignored.
func (e *Engine) AddToShortlist(strain string) error {
	for _, s := range e.shortlist {
		if s == strain {
			return nil
		}
	}
	if len(e.shortlist) >= e.shortlistCap {
		return errs.ErrShortlistFull
	}
	e.shortlist = append(e.shortlist, strain)
	return nil
}

// RemoveFromShortlist drops a strain from the compare list.
func (e *Engine) RemoveFromShortlist(strain string) {
	for i, s := range e.shortlist {
		if s == strain {
			e.shortlist = append(e.shortlist[:i], e.shortlist[i+1:]...)
			return
		}
	}
}

// --- tiers ---

// Tier is one packaged-mass offering of a strain, with the units that
// back it and how many of them this session already holds.
type Tier struct {
	Strain    string
	MassGrams float64
	Units     []model.CatalogUnit
	Selected  int
}

// Remaining reports how many physical units of the tier are still free.
func (t Tier) Remaining() int { return len(t.Units) - t.Selected }

// GroupByStrainAndWeight partitions one strain's available units into
// weight tiers, sorted by mass ascending. It is a read-only projection:
// callers use it to offer only tiers that still have capacity. A strain
// with a single tier may be added directly; with several, the caller
// must name a tier.
func (e *Engine) GroupByStrainAndWeight(units []model.CatalogUnit) []Tier {
	byMass := map[float64]*Tier{}
	for _, u := range units {
		t, ok := byMass[u.MassGrams]
		if !ok {
			t = &Tier{Strain: u.Strain, MassGrams: u.MassGrams}
			byMass[u.MassGrams] = t
		}
		t.Units = append(t.Units, u)
		if e.holds(u.ID) {
			t.Selected++
		}
	}

	tiers := make([]Tier, 0, len(byMass))
	for _, t := range byMass {
		tiers = append(tiers, *t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MassGrams < tiers[j].MassGrams })
	return tiers
}
