package repository

import (
	"context"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

// DistributionRepository persists committed distributions.
type DistributionRepository interface {
	// Create durably records the distribution, marks its units
	// dispensed, and appends the consumption entries in one
	// transaction. The returned record carries the persisted timestamp.
	Create(ctx context.Context, d model.DistributionRecord) (model.DistributionRecord, error)
}
