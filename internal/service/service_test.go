package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/repository"
	"github.com/greenpoint-pos/kiosk/internal/scan"
)

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

// --- shared fakes ---

type fakeReader struct {
	name     string
	token    string
	beginErr error
}

func (f *fakeReader) Begin(_ context.Context, session scan.SessionID) (scan.Assertion, error) {
	if f.beginErr != nil {
		return scan.Assertion{}, f.beginErr
	}
	return scan.Assertion{Session: session, ResolvedName: f.name, Token: f.token}, nil
}

func (f *fakeReader) Cancel(context.Context, scan.SessionID) error { return nil }

type fakeVerifier struct {
	identity model.Identity
	err      error
}

func (f *fakeVerifier) Verify(context.Context, scan.Assertion) (model.Identity, error) {
	if f.err != nil {
		return model.Identity{}, f.err
	}
	return f.identity, nil
}

type fakeMemberRepo struct {
	byID  map[uuid.UUID]*model.Member
	idErr error

	consumption    repository.Consumption
	consErr        error
	consDayStart   time.Time
	consMonthStart time.Time

	balance      float64
	balanceErr   error
	adjustCalls  int
	adjustMember uuid.UUID
	adjustAmount float64
	adjustDist   uuid.UUID
}

var _ repository.MemberRepository = (*fakeMemberRepo)(nil)

func (f *fakeMemberRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Member, error) {
	if f.idErr != nil {
		return nil, f.idErr
	}
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMemberRepo) GetByCredential(_ context.Context, credential string) (*model.Member, error) {
	for _, m := range f.byID {
		if m.Credential == credential {
			return m, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeMemberRepo) ConsumptionSummary(_ context.Context, _ uuid.UUID, dayStart, monthStart time.Time) (repository.Consumption, error) {
	f.consDayStart, f.consMonthStart = dayStart, monthStart
	return f.consumption, f.consErr
}

func (f *fakeMemberRepo) AdjustBalance(_ context.Context, memberID uuid.UUID, amount float64, distributionID uuid.UUID) (float64, error) {
	f.adjustCalls++
	f.adjustMember, f.adjustAmount, f.adjustDist = memberID, amount, distributionID
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

type fakeDistRepo struct {
	created   []model.DistributionRecord
	createErr error
	createdAt time.Time
}

var _ repository.DistributionRepository = (*fakeDistRepo)(nil)

func (f *fakeDistRepo) Create(_ context.Context, d model.DistributionRecord) (model.DistributionRecord, error) {
	if f.createErr != nil {
		return model.DistributionRecord{}, f.createErr
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.Must(uuid.NewV4())
	}
	if f.createdAt.IsZero() {
		f.createdAt = time.Now()
	}
	d.CreatedAt = f.createdAt
	f.created = append(f.created, d)
	return d, nil
}

