package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
)

// cancelNotifyTimeout bounds the fire-and-forget cancel call to the bridge.
const cancelNotifyTimeout = 3 * time.Second

// Protocol runs the begin→verify credential flow with structured
// cancellation. At most one scan may be in flight; Abort voids the
// current one and suppresses its late result.
type Protocol struct {
	reader   Reader
	verifier Verifier
	log      *zap.Logger

	mu     sync.Mutex
	gen    uint64
	active *activeScan
}

type activeScan struct {
	session SessionID
	cancel  context.CancelFunc
	gen     uint64
}

// NewProtocol constructs the shared scan protocol.
func NewProtocol(reader Reader, verifier Verifier, log *zap.Logger) *Protocol {
	if log == nil {
		log = zap.NewNop()
	}
	return &Protocol{reader: reader, verifier: verifier, log: log}
}

// Run executes one complete scan for the given role: fresh session id,
// hardware read, identity verification. It blocks until a credential is
// presented, the context ends, or Abort is called. Results arriving
// after an Abort are discarded, never returned.
func (p *Protocol) Run(ctx context.Context, role model.Role) (model.AuthorizationResult, error) {
	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		return model.AuthorizationResult{}, errs.ErrScanInFlight
	}
	p.gen++
	gen := p.gen
	session := NewSessionID()
	runCtx, cancel := context.WithCancel(ctx)
	p.active = &activeScan{session: session, cancel: cancel, gen: gen}
	p.mu.Unlock()

	defer p.finish(gen, cancel)

	a, err := p.reader.Begin(runCtx, session)
	if !p.current(gen) {
		// Aborted while the read was in flight: whatever came back is stale.
		return model.AuthorizationResult{}, errs.ErrScanCancelled
	}
	if err != nil {
		return model.AuthorizationResult{}, p.mapErr(err, runCtx, "begin", session)
	}

	id, err := p.verifier.Verify(runCtx, a)
	if !p.current(gen) {
		return model.AuthorizationResult{}, errs.ErrScanCancelled
	}
	if err != nil {
		return model.AuthorizationResult{}, p.mapErr(err, runCtx, "verify", session)
	}

	return model.AuthorizationResult{Identity: id, Session: string(session), Role: role}, nil
}

// Abort cancels the in-flight scan, if any: it signals the running call,
// notifies the bridge that the session is void (fire-and-forget), and
// invalidates the generation so a late result cannot resurrect state.
func (p *Protocol) Abort() {
	p.mu.Lock()
	a := p.active
	p.active = nil
	p.mu.Unlock()
	if a == nil {
		return
	}

	a.cancel()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelNotifyTimeout)
		defer cancel()
		if err := p.reader.Cancel(ctx, a.session); err != nil {
			p.log.Warn("scan cancel notify failed",
				zap.String("session", string(a.session)),
				zap.Error(err),
			)
		}
	}()
}

// InFlight reports whether a scan is currently outstanding.
func (p *Protocol) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// current reports whether the generation still owns the protocol.
func (p *Protocol) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.active.gen == gen
}

// finish releases the slot if this generation still holds it.
func (p *Protocol) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	if p.active != nil && p.active.gen == gen {
		p.active = nil
	}
	p.mu.Unlock()
}

// mapErr normalizes call failures onto the protocol's sentinel set.
func (p *Protocol) mapErr(err error, ctx context.Context, step string, session SessionID) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return errs.ErrScanCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return errs.ErrScanTimeout
	}
	p.log.Warn("scan step failed",
		zap.String("step", step),
		zap.String("session", string(session)),
		zap.Error(err),
	)
	return err
}
