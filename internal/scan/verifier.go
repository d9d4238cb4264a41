package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/limiter"
	"github.com/greenpoint-pos/kiosk/internal/model"
)

// MemberLookup resolves a credential name to a member account.
type MemberLookup interface {
	GetByCredential(ctx context.Context, credential string) (*model.Member, error)
}

// JWTVerifier validates the bridge's signed scan assertion (HS256 over a
// shared key) and resolves the subject to a member account. Repeated
// failures at a terminal are rate limited so an unattended kiosk cannot
// be brute-forced with arbitrary credentials.
type JWTVerifier struct {
	key      []byte
	members  MemberLookup
	lim      limiter.Limiter
	terminal string
}

// NewJWTVerifier constructs a verifier. lim may be nil to disable the
// failure lockout (tests, dev).
func NewJWTVerifier(key []byte, members MemberLookup, lim limiter.Limiter, terminal string) *JWTVerifier {
	return &JWTVerifier{key: key, members: members, lim: lim, terminal: terminal}
}

var _ Verifier = (*JWTVerifier)(nil)

// Verify checks the assertion's signature, expiry and session binding,
// then looks the resolved name up in the member registry.
func (v *JWTVerifier) Verify(ctx context.Context, a Assertion) (model.Identity, error) {
	credHash := limiter.HashCredential(a.ResolvedName)

	if v.lim != nil {
		allowed, _, err := v.lim.Allow(ctx, v.terminal, credHash)
		if err != nil {
			return model.Identity{}, fmt.Errorf("limiter: %w", err)
		}
		if !allowed {
			return model.Identity{}, errs.ErrRateLimited
		}
	}

	id, err := v.verify(ctx, a)
	if err != nil {
		if v.lim != nil && errors.Is(err, errs.ErrVerificationFailed) {
			if blocked, _, ferr := v.lim.Failure(ctx, v.terminal, credHash); ferr == nil && blocked {
				return model.Identity{}, errs.ErrRateLimited
			}
		}
		return model.Identity{}, err
	}

	if v.lim != nil {
		_ = v.lim.Success(ctx, v.terminal, credHash)
	}
	return id, nil
}

func (v *JWTVerifier) verify(ctx context.Context, a Assertion) (model.Identity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(a.Token, &claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: bad assertion: %v", errs.ErrVerificationFailed, err)
	}
	if claims.ID != string(a.Session) {
		return model.Identity{}, fmt.Errorf("%w: assertion bound to another session", errs.ErrVerificationFailed)
	}
	if claims.Subject != a.ResolvedName {
		return model.Identity{}, fmt.Errorf("%w: subject mismatch", errs.ErrVerificationFailed)
	}

	m, err := v.members.GetByCredential(ctx, a.ResolvedName)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, fmt.Errorf("%w: no account for %q", errs.ErrVerificationFailed, a.ResolvedName)
		}
		return model.Identity{}, err
	}

	return model.Identity{MemberID: m.ID, Name: m.Name, Staff: m.Staff}, nil
}
