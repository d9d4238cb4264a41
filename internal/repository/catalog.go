// Package repository declares persistence interfaces consumed by the
// services; PostgreSQL implementations live in the postgres subpackage.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

// CatalogRepository provides read access to the available packaged goods.
type CatalogRepository interface {
	// ListStrains returns grouped-by-strain summaries of undispensed
	// units, with per-weight-tier counts, honoring filter, sort and
	// pagination.
	ListStrains(ctx context.Context, f model.StrainFilter) ([]model.StrainSummary, error)

	// UnitsByStrain returns all undispensed units of one strain across
	// all source batches, used when opening tier selection.
	UnitsByStrain(ctx context.Context, strain string) ([]model.CatalogUnit, error)

	// GetUnit returns a single unit by id regardless of dispensed state.
	GetUnit(ctx context.Context, id uuid.UUID) (*model.CatalogUnit, error)
}
