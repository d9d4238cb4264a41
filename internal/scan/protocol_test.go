package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/greenpoint-pos/kiosk/internal/errs"
	"github.com/greenpoint-pos/kiosk/internal/model"
)

type fakeReader struct {
	mu        sync.Mutex
	gate      chan struct{} // Begin blocks until closed (nil = no block)
	assertion Assertion
	beginErr  error

	beginSessions  []SessionID
	cancelSessions []SessionID
	cancelCalled   chan SessionID
}

func newFakeReader() *fakeReader {
	return &fakeReader{cancelCalled: make(chan SessionID, 4)}
}

func (f *fakeReader) Begin(ctx context.Context, session SessionID) (Assertion, error) {
	f.mu.Lock()
	f.beginSessions = append(f.beginSessions, session)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Assertion{}, ctx.Err()
		}
	}
	if f.beginErr != nil {
		return Assertion{}, f.beginErr
	}
	a := f.assertion
	a.Session = session
	return a, nil
}

func (f *fakeReader) Cancel(_ context.Context, session SessionID) error {
	f.mu.Lock()
	f.cancelSessions = append(f.cancelSessions, session)
	f.mu.Unlock()
	f.cancelCalled <- session
	return nil
}

type fakeVerifier struct {
	identity model.Identity
	err      error
	calls    int
}

func (f *fakeVerifier) Verify(_ context.Context, a Assertion) (model.Identity, error) {
	f.calls++
	if f.err != nil {
		return model.Identity{}, f.err
	}
	return f.identity, nil
}

func TestProtocol_Run_Success(t *testing.T) {
	r := newFakeReader()
	r.assertion = Assertion{ResolvedName: "Jane Moss", Token: "tok"}
	id := model.Identity{MemberID: uuid.Must(uuid.NewV4()), Name: "Jane Moss"}
	v := &fakeVerifier{identity: id}
	p := NewProtocol(r, v, nil)

	res, err := p.Run(context.Background(), model.RoleRecipient)
	require.NoError(t, err)
	require.Equal(t, id, res.Identity)
	require.Equal(t, model.RoleRecipient, res.Role)
	require.NotEmpty(t, res.Session)
	require.False(t, p.InFlight())
}

func TestProtocol_Run_FreshSessionPerInvocation(t *testing.T) {
	r := newFakeReader()
	r.assertion = Assertion{ResolvedName: "Jane Moss", Token: "tok"}
	v := &fakeVerifier{identity: model.Identity{Name: "Jane Moss"}}
	p := NewProtocol(r, v, nil)

	first, err := p.Run(context.Background(), model.RoleRecipient)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), model.RoleStaff)
	require.NoError(t, err)

	// Two physically distinct scans: session tokens never repeat.
	require.NotEqual(t, first.Session, second.Session)
	require.Len(t, r.beginSessions, 2)
}

func TestProtocol_Run_SingleFlight(t *testing.T) {
	r := newFakeReader()
	r.gate = make(chan struct{})
	v := &fakeVerifier{}
	p := NewProtocol(r, v, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run(context.Background(), model.RoleRecipient)
	}()

	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)

	_, err := p.Run(context.Background(), model.RoleStaff)
	require.ErrorIs(t, err, errs.ErrScanInFlight)

	close(r.gate)
	<-done
}

func TestProtocol_Abort_SuppressesLateSuccess(t *testing.T) {
	// Cancel before the read resolves: the orchestrator must see a
	// cancellation even though the underlying call later succeeds, and
	// the verifier must never run against the stale assertion.
	r := newFakeReader()
	r.gate = make(chan struct{})
	r.assertion = Assertion{ResolvedName: "Jane Moss", Token: "tok"}
	v := &fakeVerifier{identity: model.Identity{Name: "Jane Moss"}}
	p := NewProtocol(r, v, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), model.RoleRecipient)
		errCh <- err
	}()

	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)
	p.Abort()
	close(r.gate) // let the "hardware" answer late

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, errs.ErrScanCancelled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after abort")
	}
	require.Zero(t, v.calls)
	require.False(t, p.InFlight())
}

func TestProtocol_Abort_NotifiesBridge(t *testing.T) {
	r := newFakeReader()
	r.gate = make(chan struct{})
	p := NewProtocol(r, &fakeVerifier{}, nil)

	go func() { _, _ = p.Run(context.Background(), model.RoleRecipient) }()
	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)

	p.Abort()
	select {
	case cancelled := <-r.cancelCalled:
		r.mu.Lock()
		begun := r.beginSessions[0]
		r.mu.Unlock()
		require.Equal(t, begun, cancelled)
	case <-time.After(time.Second):
		t.Fatal("bridge cancel was not fired")
	}
	close(r.gate)
}

func TestProtocol_Abort_Idle_NoOp(t *testing.T) {
	r := newFakeReader()
	p := NewProtocol(r, &fakeVerifier{}, nil)
	p.Abort()
	require.Empty(t, r.cancelSessions)
}

func TestProtocol_Run_MapsTimeout(t *testing.T) {
	r := newFakeReader()
	r.beginErr = context.DeadlineExceeded
	p := NewProtocol(r, &fakeVerifier{}, nil)

	_, err := p.Run(context.Background(), model.RoleRecipient)
	require.ErrorIs(t, err, errs.ErrScanTimeout)
}

func TestProtocol_Run_PropagatesReaderError(t *testing.T) {
	r := newFakeReader()
	r.beginErr = errs.ErrReader
	p := NewProtocol(r, &fakeVerifier{}, nil)

	_, err := p.Run(context.Background(), model.RoleRecipient)
	require.ErrorIs(t, err, errs.ErrReader)
}

func TestProtocol_Run_VerificationFailure(t *testing.T) {
	r := newFakeReader()
	r.assertion = Assertion{ResolvedName: "Nobody", Token: "tok"}
	v := &fakeVerifier{err: errs.ErrVerificationFailed}
	p := NewProtocol(r, v, nil)

	_, err := p.Run(context.Background(), model.RoleRecipient)
	require.ErrorIs(t, err, errs.ErrVerificationFailed)
	// No silent retry: one verify attempt only.
	require.Equal(t, 1, v.calls)
	require.False(t, p.InFlight())
}

func TestProtocol_Run_CallerContextCancel(t *testing.T) {
	r := newFakeReader()
	r.gate = make(chan struct{})
	p := NewProtocol(r, &fakeVerifier{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, model.RoleRecipient)
		errCh <- err
	}()
	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, errs.ErrScanCancelled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return on context cancel")
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := map[SessionID]bool{}
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestProtocol_MapErr_PassThroughUnknown(t *testing.T) {
	r := newFakeReader()
	boom := errors.New("boom")
	r.beginErr = boom
	p := NewProtocol(r, &fakeVerifier{}, nil)

	_, err := p.Run(context.Background(), model.RoleRecipient)
	require.ErrorIs(t, err, boom)
}
