package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

// Consumption is the already-distributed mass for a member before the
// current session.
type Consumption struct {
	DailyGrams   float64
	MonthlyGrams float64
}

// MemberRepository provides access to the member registry and balance ledger.
type MemberRepository interface {
	// GetByID returns a member account by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Member, error)

	// GetByCredential resolves the reader's credential name to an account.
	GetByCredential(ctx context.Context, credential string) (*model.Member, error)

	// ConsumptionSummary sums distributed mass since the given day and
	// month boundaries (exclusive of the current session).
	ConsumptionSummary(ctx context.Context, memberID uuid.UUID, dayStart, monthStart time.Time) (Consumption, error)

	// AdjustBalance applies a signed amount to the member's balance and
	// records the adjustment against the distribution that caused it.
	// Returns the new balance.
	AdjustBalance(ctx context.Context, memberID uuid.UUID, amount float64, distributionID uuid.UUID) (float64, error)
}
