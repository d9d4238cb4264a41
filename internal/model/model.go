// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role distinguishes the two credential presentations of a distribution.
type Role string

const (
	// RoleRecipient is the member receiving goods, scanned first.
	RoleRecipient Role = "recipient"
	// RoleStaff is the authorizing staff member, scanned last.
	RoleStaff Role = "staff"
)

// Category is the product category of a packaged unit.
type Category string

const (
	CategoryFlower      Category = "flower"
	CategoryConcentrate Category = "concentrate"
)

// Identity is a durable member identity resolved from a credential scan.
type Identity struct {
	MemberID uuid.UUID
	Name     string
	Staff    bool
}

// Member is a registered account: a recipient, a staff authorizer, or
// both. Limits are configured per member by the registry backend.
type Member struct {
	ID                uuid.UUID
	Name              string
	Credential        string // name resolved by the credential reader, unique
	Staff             bool
	RestrictedAge     bool
	Balance           float64
	DailyLimitGrams   float64
	MonthlyLimitGrams float64
	PotencyCapPercent *float64 // set when RestrictedAge
	CreatedAt         time.Time
}

// Recipient is the session-scoped view of the member being served.
// Created per session from the identification step, never persisted by
// the workflow, discarded on reset.
type Recipient struct {
	ID            uuid.UUID
	Name          string
	RestrictedAge bool    // potency cap applies
	Balance       float64 // account balance at identification time
}

// QuotaSnapshot holds configured limits and prior consumption for a
// recipient. Consumed values reflect prior sessions only; the selection
// engine must add the running session mass on every check.
type QuotaSnapshot struct {
	DailyLimitGrams    float64
	MonthlyLimitGrams  float64
	DailyConsumedGrams float64
	MonthConsumedGrams float64
	PotencyCapPercent  *float64 // set only for restricted-age classes
}

// DailyRemaining returns the headroom left today before sessionMass.
func (q QuotaSnapshot) DailyRemaining(sessionMass float64) float64 {
	return max(0, q.DailyLimitGrams-q.DailyConsumedGrams-sessionMass)
}

// MonthlyRemaining returns the headroom left this month before sessionMass.
func (q QuotaSnapshot) MonthlyRemaining(sessionMass float64) float64 {
	return max(0, q.MonthlyLimitGrams-q.MonthConsumedGrams-sessionMass)
}

// CatalogUnit is an individually distributable packaged item, owned by
// the catalog backend and immutable once fetched.
type CatalogUnit struct {
	ID             uuid.UUID
	BatchID        string
	Strain         string
	Category       Category
	MassGrams      float64
	PotencyPercent *float64 // nil when the lab value is not recorded
	Price          *float64 // nil when no price is configured
	Dispensed      bool
}

// SelectionItem is a catalog unit accepted into the pending set of the
// current session.
type SelectionItem struct {
	Unit    CatalogUnit
	AddedAt time.Time
}

// AuthorizationResult pairs a resolved identity with the scan session
// that produced it. A distribution carries two of these, one per role,
// from two physically distinct scans.
type AuthorizationResult struct {
	Identity Identity
	Session  string // scan session token
	Role     Role
}

// DistributionRecord is the committed outcome of a session. Created
// exactly once by the dispense service, immutable thereafter.
type DistributionRecord struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	StaffID     uuid.UUID
	UnitIDs     []uuid.UUID
	TotalGrams  float64
	TotalPrice  float64
	Notes       string
	CreatedAt   time.Time
}

// StrainSummary is a catalog listing row: one strain with its per-tier
// availability, used by the selection UI.
type StrainSummary struct {
	Strain     string
	Category   Category
	MinPotency *float64
	MaxPotency *float64
	Tiers      []TierCount
	SalesCount int
	Rating     *float64
	NewestAt   time.Time
}

// TierCount reports how many units of one packaged mass are available.
type TierCount struct {
	MassGrams float64
	Available int
}

// StrainSort selects the ordering of catalog strain listings.
type StrainSort string

const (
	SortPopularity StrainSort = "popularity"
	SortRecency    StrainSort = "recency"
	SortRating     StrainSort = "rating"
	SortSales      StrainSort = "sales"
)

// StrainFilter narrows and pages a catalog strain listing.
type StrainFilter struct {
	Category   Category // empty matches all
	Search     string   // substring match on strain name
	MinPotency *float64
	MaxPotency *float64
	Sort       StrainSort
	Limit      int
	Offset     int
}
