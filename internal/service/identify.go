// Package service contains application services for recipient
// identification, staff authorization and the distribution commit.
package service

import (
	"context"
	"time"

	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/repository"
	"github.com/greenpoint-pos/kiosk/internal/scan"
)

// IdentifiedRecipient bundles everything the selection step needs:
// the recipient, their quota snapshot, and the scan that produced them.
type IdentifiedRecipient struct {
	Recipient model.Recipient
	Snapshot  model.QuotaSnapshot
	Auth      model.AuthorizationResult
}

// Identification resolves a scanned credential to a recipient and loads
// their configured limits plus already-consumed quota.
type Identification struct {
	proto   *scan.Protocol
	members repository.MemberRepository
	now     func() time.Time
}

// NewIdentification constructs the identification service. The protocol
// is shared with the authorization service so the single-scan-in-flight
// rule holds across both.
func NewIdentification(proto *scan.Protocol, members repository.MemberRepository, now func() time.Time) *Identification {
	if now == nil {
		now = time.Now
	}
	return &Identification{proto: proto, members: members, now: now}
}

// Identify runs one recipient scan and assembles the quota snapshot for
// the session. It blocks until a credential is presented, the context
// ends, or Cancel is called.
func (s *Identification) Identify(ctx context.Context) (IdentifiedRecipient, error) {
	res, err := s.proto.Run(ctx, model.RoleRecipient)
	if err != nil {
		return IdentifiedRecipient{}, err
	}

	m, err := s.members.GetByID(ctx, res.Identity.MemberID)
	if err != nil {
		return IdentifiedRecipient{}, err
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	cons, err := s.members.ConsumptionSummary(ctx, m.ID, dayStart, monthStart)
	if err != nil {
		return IdentifiedRecipient{}, err
	}

	return IdentifiedRecipient{
		Recipient: model.Recipient{
			ID:            m.ID,
			Name:          m.Name,
			RestrictedAge: m.RestrictedAge,
			Balance:       m.Balance,
		},
		Snapshot: model.QuotaSnapshot{
			DailyLimitGrams:    m.DailyLimitGrams,
			MonthlyLimitGrams:  m.MonthlyLimitGrams,
			DailyConsumedGrams: cons.DailyGrams,
			MonthConsumedGrams: cons.MonthlyGrams,
			PotencyCapPercent:  m.PotencyCapPercent,
		},
		Auth: res,
	}, nil
}

// Cancel aborts an in-flight identification scan.
func (s *Identification) Cancel() { s.proto.Abort() }
