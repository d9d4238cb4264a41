// Package quota evaluates regulatory consumption limits for a pending
// selection. Validation is pure: it never mutates state and must be
// re-run on every candidate add because the session total changes with
// each acceptance.
package quota

import "github.com/greenpoint-pos/kiosk/internal/model"

// ReasonCode is a closed enumeration of rejection reasons, consumed
// uniformly by the validator, the selection engine and the HTTP edge.
type ReasonCode int

const (
	// DailyLimitExceeded: accepting the candidate would push the session
	// past the recipient's daily mass limit.
	DailyLimitExceeded ReasonCode = iota
	// MonthlyLimitExceeded: same check against the monthly mass limit.
	MonthlyLimitExceeded
	// PotencyLimitExceeded: the candidate's potency is above the cap of a
	// restricted-age recipient.
	PotencyLimitExceeded
	// NoStock: the requested tier has no physical units left. Independent
	// of quota math and reportable alongside it.
	NoStock
)

var reasonNames = map[ReasonCode]string{
	DailyLimitExceeded:   "DAILY_LIMIT_EXCEEDED",
	MonthlyLimitExceeded: "MONTHLY_LIMIT_EXCEEDED",
	PotencyLimitExceeded: "POTENCY_LIMIT_EXCEEDED",
	NoStock:              "NO_STOCK",
}

// String returns the stable wire name of the code.
func (c ReasonCode) String() string {
	if s, ok := reasonNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Violation pairs a reason with the remaining headroom at evaluation
// time. RemainingGrams is meaningful for the two mass-limit codes only.
type Violation struct {
	Code           ReasonCode
	RemainingGrams float64
}

// Result is the outcome of validating one candidate. A candidate may
// violate several rules at once; all violations are reported.
type Result struct {
	Accepted   bool
	Violations []Violation
}

// Validate checks whether adding candidate to a session that already
// holds sessionMass grams would break the recipient's daily, monthly or
// potency limits. Each rule is evaluated independently.
func Validate(candidate model.CatalogUnit, snap model.QuotaSnapshot, sessionMass float64, restrictedAge bool) Result {
	var vs []Violation

	if snap.DailyConsumedGrams+sessionMass+candidate.MassGrams > snap.DailyLimitGrams {
		vs = append(vs, Violation{
			Code:           DailyLimitExceeded,
			RemainingGrams: snap.DailyRemaining(sessionMass),
		})
	}
	if snap.MonthConsumedGrams+sessionMass+candidate.MassGrams > snap.MonthlyLimitGrams {
		vs = append(vs, Violation{
			Code:           MonthlyLimitExceeded,
			RemainingGrams: snap.MonthlyRemaining(sessionMass),
		})
	}
	if restrictedAge && candidate.PotencyPercent != nil && snap.PotencyCapPercent != nil &&
		*candidate.PotencyPercent > *snap.PotencyCapPercent {
		vs = append(vs, Violation{Code: PotencyLimitExceeded})
	}

	return Result{Accepted: len(vs) == 0, Violations: vs}
}
