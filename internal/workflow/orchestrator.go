// Package workflow drives the kiosk session state machine. One
// Orchestrator instance serves one physical terminal; every mutation is
// serialized under its mutex, so the selection engine underneath never
// sees concurrent access.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
	"github.com/greenpoint-pos/kiosk/internal/quota"
	"github.com/greenpoint-pos/kiosk/internal/repository"
	"github.com/greenpoint-pos/kiosk/internal/selection"
	"github.com/greenpoint-pos/kiosk/internal/service"
)

// State names one step of the session loop.
type State string

const (
	StateIdentify  State = "IDENTIFY"
	StateSelect    State = "SELECT"
	StateReview    State = "REVIEW"
	StateAuthorize State = "AUTHORIZE"
	StateSuccess   State = "SUCCESS"
)

// DefaultAutoReset is how long the success screen stays up before the
// terminal returns to idle on its own.
const DefaultAutoReset = 30 * time.Second

// Identifier runs the recipient scan step.
type Identifier interface {
	Identify(ctx context.Context) (service.IdentifiedRecipient, error)
	Cancel()
}

// Authorizer runs the staff scan step.
type Authorizer interface {
	Authorize(ctx context.Context, recipientID uuid.UUID) (model.AuthorizationResult, error)
	Cancel()
}

// Committer finalizes an authorized session.
type Committer interface {
	Commit(ctx context.Context, recipient, staff model.AuthorizationResult, items []model.SelectionItem, notes string) (service.CommitResult, error)
}

// Subscriber receives a read-only snapshot after every transition.
type Subscriber func(Snapshot)

// Snapshot is the immutable view handed to the UI and the state stream.
type Snapshot struct {
	State          State                 `json:"state"`
	ScanPending    bool                  `json:"scan_pending"`
	Recipient      *model.Recipient      `json:"recipient,omitempty"`
	Quota          *model.QuotaSnapshot  `json:"quota,omitempty"`
	Items          []model.SelectionItem `json:"items,omitempty"`
	TotalGrams     float64               `json:"total_grams"`
	TotalPrice     float64               `json:"total_price"`
	Shortlist      []string              `json:"shortlist,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Error          string                `json:"error,omitempty"`
	PartialFailure bool                  `json:"partial_failure"`
	PartialID      string                `json:"partial_distribution_id,omitempty"`
	Result         *service.CommitResult `json:"result,omitempty"`
}

// Config tunes an Orchestrator.
type Config struct {
	AutoReset    time.Duration // 0 means DefaultAutoReset
	ShortlistCap int           // 0 means selection.DefaultShortlistCap
}

// Orchestrator owns the per-terminal session and its state machine.
type Orchestrator struct {
	ident    Identifier
	auth     Authorizer
	dispense Committer
	catalog  repository.CatalogRepository
	log      *zap.Logger
	cfg      Config

	mu          sync.Mutex
	state       State
	epoch       uint64 // bumped on reset and scan cancel; stale goroutine results are dropped
	scanPending bool
	recipient   *model.Recipient
	engine      *selection.Engine
	recAuth     model.AuthorizationResult
	notes       string
	errMsg      string
	partial     *service.PartialCommitError
	result      *service.CommitResult
	resetTimer  *time.Timer
	subs        []Subscriber
}

// New constructs an idle orchestrator in StateIdentify.
func New(ident Identifier, auth Authorizer, dispense Committer, catalog repository.CatalogRepository, log *zap.Logger, cfg Config) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AutoReset <= 0 {
		cfg.AutoReset = DefaultAutoReset
	}
	return &Orchestrator{
		ident:    ident,
		auth:     auth,
		dispense: dispense,
		catalog:  catalog,
		log:      log,
		cfg:      cfg,
		state:    StateIdentify,
	}
}

// Subscribe registers a listener for state snapshots. Listeners are
// called synchronously after each transition and must not block.
func (o *Orchestrator) Subscribe(fn Subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}

// Snapshot returns the current read-only view of the session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          o.state,
		ScanPending:    o.scanPending,
		Recipient:      o.recipient,
		Notes:          o.notes,
		Error:          o.errMsg,
		PartialFailure: o.partial != nil,
		Result:         o.result,
	}
	if o.partial != nil {
		s.PartialID = o.partial.DistributionID.String()
	}
	if o.engine != nil {
		snap := o.engine.Snapshot()
		s.Quota = &snap
		s.Items = o.engine.Items()
		s.TotalGrams = o.engine.TotalMass()
		s.TotalPrice = o.engine.TotalPrice()
		s.Shortlist = o.engine.Shortlist()
	}
	return s
}

// broadcast sends the current snapshot to all subscribers. Never call
// with the mutex held.
func (o *Orchestrator) broadcast() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	subs := append([]Subscriber(nil), o.subs...)
	o.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// StartIdentify launches the recipient scan. It returns immediately;
// the outcome arrives through the state stream. The scan goroutine
// outlives the HTTP request that started it, so cancellation goes
// through CancelScan, not a request context.
func (o *Orchestrator) StartIdentify() error {
	o.mu.Lock()
	if o.state != StateIdentify {
		o.mu.Unlock()
		return fmt.Errorf("%w: identify from %s", errs.ErrBadTransition, o.state)
	}
	if o.scanPending {
		o.mu.Unlock()
		return errs.ErrScanInFlight
	}
	o.scanPending = true
	o.errMsg = ""
	epoch := o.epoch
	o.mu.Unlock()
	o.broadcast()

	go func() {
		out, err := o.ident.Identify(context.Background())

		o.mu.Lock()
		if o.epoch != epoch {
			o.mu.Unlock()
			return // session was reset or the scan cancelled; drop the result
		}
		o.scanPending = false
		if err != nil {
			o.errMsg = userMessage(err)
			o.mu.Unlock()
			o.broadcast()
			return
		}
		o.recipient = &out.Recipient
		o.recAuth = out.Auth
		o.engine = selection.New(out.Snapshot, out.Recipient.RestrictedAge,
			selection.WithShortlistCap(o.cfg.ShortlistCap))
		o.state = StateSelect
		o.mu.Unlock()
		o.broadcast()
	}()
	return nil
}

// CancelScan aborts whichever scan is pending and leaves the workflow
// in the state it was in before the scan started. A resolution that
// arrives after the cancel is discarded.
func (o *Orchestrator) CancelScan() error {
	o.mu.Lock()
	if !o.scanPending {
		o.mu.Unlock()
		return nil
	}
	o.scanPending = false
	o.epoch++
	state := o.state
	if state == StateAuthorize {
		o.state = StateReview
	}
	o.mu.Unlock()

	switch state {
	case StateIdentify:
		o.ident.Cancel()
	case StateAuthorize:
		o.auth.Cancel()
	}
	o.broadcast()
	return nil
}

// Tiers returns the weight-tier view of one strain for the current
// session, with per-tier remaining counts.
func (o *Orchestrator) Tiers(ctx context.Context, strain string) ([]selection.Tier, error) {
	units, err := o.catalog.UnitsByStrain(ctx, strain)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateSelect || o.engine == nil {
		return nil, fmt.Errorf("%w: tiers from %s", errs.ErrBadTransition, o.state)
	}
	return o.engine.GroupByStrainAndWeight(units), nil
}

// AddUnit validates one specific unit against the session quota and
// adds it to the selection. Violations are returned, not wrapped in an
// error: a rejected add is a normal outcome, not a failure.
func (o *Orchestrator) AddUnit(ctx context.Context, unitID uuid.UUID) ([]quota.Violation, error) {
	u, err := o.catalog.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: add unit from %s", errs.ErrBadTransition, o.state)
	}
	if u.Dispensed {
		o.mu.Unlock()
		return []quota.Violation{{Code: quota.NoStock}}, nil
	}
	_, vs := o.engine.Add(*u)
	o.mu.Unlock()
	if len(vs) == 0 {
		o.broadcast()
	}
	return vs, nil
}

// AddTier adds the next free unit of a strain's weight tier. When the
// strain carries a single tier, mass may be nil; with several tiers the
// caller must name one.
func (o *Orchestrator) AddTier(ctx context.Context, strain string, massGrams *float64) ([]quota.Violation, error) {
	units, err := o.catalog.UnitsByStrain(ctx, strain)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: add tier from %s", errs.ErrBadTransition, o.state)
	}

	tiers := o.engine.GroupByStrainAndWeight(units)
	if len(tiers) == 0 {
		o.mu.Unlock()
		return []quota.Violation{{Code: quota.NoStock}}, nil
	}

	var pick *selection.Tier
	switch {
	case massGrams == nil && len(tiers) == 1:
		pick = &tiers[0]
	case massGrams == nil:
		o.mu.Unlock()
		return nil, fmt.Errorf("strain %q has %d weight tiers, specify one", strain, len(tiers))
	default:
		for i := range tiers {
			if tiers[i].MassGrams == *massGrams {
				pick = &tiers[i]
				break
			}
		}
		if pick == nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("strain %q has no %.1fg tier: %w", strain, *massGrams, errs.ErrNotFound)
		}
	}

	_, vs := o.engine.AddFromTier(*pick)
	o.mu.Unlock()
	if len(vs) == 0 {
		o.broadcast()
	}
	return vs, nil
}

// RemoveUnit drops a unit from the selection.
func (o *Orchestrator) RemoveUnit(unitID uuid.UUID) error {
	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: remove unit from %s", errs.ErrBadTransition, o.state)
	}
	if !o.engine.Remove(unitID) {
		o.mu.Unlock()
		return errs.ErrNotFound
	}
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// ClearSelection empties the pending set but keeps the shortlist.
func (o *Orchestrator) ClearSelection() error {
	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: clear from %s", errs.ErrBadTransition, o.state)
	}
	o.engine.Clear()
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// AddShortlist records a strain on the compare shortlist.
func (o *Orchestrator) AddShortlist(strain string) error {
	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: shortlist from %s", errs.ErrBadTransition, o.state)
	}
	if err := o.engine.AddToShortlist(strain); err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// RemoveShortlist drops a strain from the compare shortlist.
func (o *Orchestrator) RemoveShortlist(strain string) error {
	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: shortlist from %s", errs.ErrBadTransition, o.state)
	}
	o.engine.RemoveFromShortlist(strain)
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// Review moves Select → Review. The selection must be non-empty and the
// aggregate headroom check is recomputed from scratch rather than
// trusting the per-add validations.
func (o *Orchestrator) Review(notes string) error {
	o.mu.Lock()
	if o.state != StateSelect || o.engine == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: review from %s", errs.ErrBadTransition, o.state)
	}
	if len(o.engine.Items()) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: nothing selected", errs.ErrBadTransition)
	}
	if !o.engine.WithinLimits() {
		o.mu.Unlock()
		return fmt.Errorf("%w: selection exceeds quota", errs.ErrBadTransition)
	}
	o.notes = notes
	o.errMsg = ""
	o.state = StateReview
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// BackToSelect moves Review → Select with the selection intact.
func (o *Orchestrator) BackToSelect() error {
	o.mu.Lock()
	if o.state != StateReview {
		o.mu.Unlock()
		return fmt.Errorf("%w: back from %s", errs.ErrBadTransition, o.state)
	}
	o.state = StateSelect
	o.errMsg = ""
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// StartAuthorize launches the staff scan and, on success, the one
// commit this authorization is allowed. Any failure before the commit
// returns to Review with the selection preserved; a partial commit
// failure additionally latches the sticky partial-failure flag.
func (o *Orchestrator) StartAuthorize() error {
	o.mu.Lock()
	if o.state != StateReview {
		o.mu.Unlock()
		return fmt.Errorf("%w: authorize from %s", errs.ErrBadTransition, o.state)
	}
	if o.partial != nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: partial failure pending acknowledgement", errs.ErrBadTransition)
	}
	if o.scanPending {
		o.mu.Unlock()
		return errs.ErrScanInFlight
	}
	o.state = StateAuthorize
	o.scanPending = true
	o.errMsg = ""
	epoch := o.epoch
	recipientID := o.recipient.ID
	o.mu.Unlock()
	o.broadcast()

	go o.runAuthorize(epoch, recipientID)
	return nil
}

func (o *Orchestrator) runAuthorize(epoch uint64, recipientID uuid.UUID) {
	staff, err := o.auth.Authorize(context.Background(), recipientID)

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return
	}
	o.scanPending = false
	if err != nil {
		o.state = StateReview
		o.errMsg = userMessage(err)
		o.mu.Unlock()
		o.broadcast()
		return
	}

	// Commit exactly once per completed authorization. The session data
	// is captured under the lock; the commit itself runs without it so
	// state reads stay responsive during the database round trip.
	recipient := o.recAuth
	items := o.engine.Items()
	notes := o.notes
	o.mu.Unlock()

	res, err := o.dispense.Commit(context.Background(), recipient, staff, items, notes)

	o.mu.Lock()
	if o.epoch != epoch {
		// The terminal was reset while the commit was in flight. The
		// distribution may have landed; it is durable either way, so log
		// loudly instead of touching the fresh session.
		o.mu.Unlock()
		o.log.Warn("commit finished after session reset",
			zap.String("recipient_id", recipientID.String()),
			zap.Error(err),
		)
		return
	}
	if err != nil {
		var pce *service.PartialCommitError
		if errors.As(err, &pce) {
			o.partial = pce
		}
		o.state = StateReview
		o.errMsg = userMessage(err)
		o.mu.Unlock()
		o.broadcast()
		return
	}

	o.result = &res
	o.state = StateSuccess
	o.scheduleAutoResetLocked(epoch)
	o.mu.Unlock()
	o.broadcast()
}

func (o *Orchestrator) scheduleAutoResetLocked(epoch uint64) {
	if o.resetTimer != nil {
		o.resetTimer.Stop()
	}
	o.resetTimer = time.AfterFunc(o.cfg.AutoReset, func() {
		o.mu.Lock()
		if o.epoch != epoch {
			o.mu.Unlock()
			return
		}
		o.resetLocked()
		o.mu.Unlock()
		o.broadcast()
	})
}

// AcknowledgePartialFailure clears the sticky partial-failure flag and
// resets the terminal. The recorded distribution stays; reconciliation
// of the missed debit happens out of band.
func (o *Orchestrator) AcknowledgePartialFailure() error {
	o.mu.Lock()
	if o.partial == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: no partial failure to acknowledge", errs.ErrBadTransition)
	}
	o.log.Info("partial commit acknowledged",
		zap.String("distribution_id", o.partial.DistributionID.String()),
	)
	o.partial = nil
	o.resetLocked()
	o.mu.Unlock()
	o.broadcast()
	return nil
}

// Reset abandons the session from any state and returns to Identify.
// An unacknowledged partial failure survives the reset.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	pending := o.scanPending
	state := o.state
	o.resetLocked()
	o.mu.Unlock()

	if pending {
		switch state {
		case StateIdentify:
			o.ident.Cancel()
		case StateAuthorize:
			o.auth.Cancel()
		}
	}
	o.broadcast()
}

// resetLocked clears session state. The partial-failure flag is the one
// thing that survives: it is cleared only by AcknowledgePartialFailure.
func (o *Orchestrator) resetLocked() {
	o.epoch++
	o.scanPending = false
	o.recipient = nil
	o.engine = nil
	o.recAuth = model.AuthorizationResult{}
	o.notes = ""
	o.errMsg = ""
	o.result = nil
	o.state = StateIdentify
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

// userMessage turns workflow errors into the short strings the kiosk
// screen shows. Cancellation is silent: the operator asked for it.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errs.ErrScanCancelled):
		return ""
	case errors.Is(err, errs.ErrScanTimeout):
		return "scan timed out, try again"
	case errors.Is(err, errs.ErrRateLimited):
		return "too many failed scans, terminal is locked for a moment"
	case errors.Is(err, errs.ErrVerificationFailed):
		return "credential not recognized"
	case errors.Is(err, errs.ErrReader):
		return "credential reader unavailable"
	default:
		return err.Error()
	}
}
