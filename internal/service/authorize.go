package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/scan"
)

// Authorization obtains the second, independent staff credential that
// gates every commit. It reuses the identification scan protocol with a
// fresh session, so one physical scan can never satisfy both roles.
type Authorization struct {
	proto *scan.Protocol
}

// NewAuthorization constructs the authorization service over the shared
// scan protocol.
func NewAuthorization(proto *scan.Protocol) *Authorization {
	return &Authorization{proto: proto}
}

// Authorize runs one staff scan. The resolved member must carry the
// staff role and must not be the recipient being served.
func (s *Authorization) Authorize(ctx context.Context, recipientID uuid.UUID) (model.AuthorizationResult, error) {
	res, err := s.proto.Run(ctx, model.RoleStaff)
	if err != nil {
		return model.AuthorizationResult{}, err
	}
	if !res.Identity.Staff {
		return model.AuthorizationResult{}, fmt.Errorf("%w: %s is not authorized staff", errs.ErrVerificationFailed, res.Identity.Name)
	}
	if res.Identity.MemberID == recipientID {
		return model.AuthorizationResult{}, fmt.Errorf("%w: recipient cannot authorize their own distribution", errs.ErrVerificationFailed)
	}
	return res, nil
}

// Cancel aborts an in-flight authorization scan.
func (s *Authorization) Cancel() { s.proto.Abort() }
