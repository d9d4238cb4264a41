package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/repository"
)

// PartialCommitError reports the known partial-failure state: the
// distribution record exists but the balance debit did not land. The two
// systems of record disagree; a human must reconcile, so this error is
// loud, distinct, and never auto-retried.
type PartialCommitError struct {
	DistributionID uuid.UUID
	RecipientID    uuid.UUID
	Amount         float64
	Err            error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("distribution %s recorded but balance adjustment of %.2f failed: %v",
		e.DistributionID, e.Amount, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// CommitResult is the committed record plus the recipient's new balance.
type CommitResult struct {
	Record     model.DistributionRecord
	NewBalance float64
}

// Dispense finalizes a distribution: one transactional create of the
// record, then the dependent balance debit referencing it.
type Dispense struct {
	dists   repository.DistributionRepository
	members repository.MemberRepository
	log     *zap.Logger
}

// NewDispense constructs the dispense service.
func NewDispense(dists repository.DistributionRepository, members repository.MemberRepository, log *zap.Logger) *Dispense {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispense{dists: dists, members: members, log: log}
}

// Commit validates the two authorization results, durably creates the
// distribution, then debits the balance. Commit is not idempotent: the
// caller owns the at-most-one-attempt-per-authorization guarantee.
func (s *Dispense) Commit(
	ctx context.Context,
	recipient, staff model.AuthorizationResult,
	items []model.SelectionItem,
	notes string,
) (CommitResult, error) {
	if err := checkAuthPair(recipient, staff); err != nil {
		return CommitResult{}, err
	}
	if len(items) == 0 {
		return CommitResult{}, errors.New("empty selection")
	}

	var (
		unitIDs    = make([]uuid.UUID, 0, len(items))
		totalGrams float64
		totalPrice float64
	)
	for _, it := range items {
		unitIDs = append(unitIDs, it.Unit.ID)
		totalGrams += it.Unit.MassGrams
		if it.Unit.Price != nil {
			totalPrice += *it.Unit.Price
		}
	}

	rec, err := s.dists.Create(ctx, model.DistributionRecord{
		RecipientID: recipient.Identity.MemberID,
		StaffID:     staff.Identity.MemberID,
		UnitIDs:     unitIDs,
		TotalGrams:  totalGrams,
		TotalPrice:  totalPrice,
		Notes:       notes,
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("create distribution: %w", err)
	}

	newBalance, err := s.members.AdjustBalance(ctx, rec.RecipientID, -rec.TotalPrice, rec.ID)
	if err != nil {
		pce := &PartialCommitError{
			DistributionID: rec.ID,
			RecipientID:    rec.RecipientID,
			Amount:         -rec.TotalPrice,
			Err:            err,
		}
		s.log.Error("partial commit: balance adjustment failed after distribution was recorded",
			zap.String("distribution_id", rec.ID.String()),
			zap.String("recipient_id", rec.RecipientID.String()),
			zap.Float64("amount", -rec.TotalPrice),
			zap.Error(err),
		)
		return CommitResult{Record: rec}, pce
	}

	return CommitResult{Record: rec, NewBalance: newBalance}, nil
}

// checkAuthPair enforces the two-party protocol: correct roles, two
// distinct scan sessions, two distinct members.
func checkAuthPair(recipient, staff model.AuthorizationResult) error {
	switch {
	case recipient.Role != model.RoleRecipient || staff.Role != model.RoleStaff:
		return errors.New("authorization results out of role")
	case recipient.Session == "" || staff.Session == "":
		return errors.New("missing scan session")
	case recipient.Session == staff.Session:
		return errors.New("recipient and staff share one scan session")
	case !staff.Identity.Staff:
		return errors.New("authorizer lacks staff role")
	case recipient.Identity.MemberID == staff.Identity.MemberID:
		return errors.New("recipient cannot authorize their own distribution")
	}
	return nil
}
