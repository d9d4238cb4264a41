// Package scan implements the two-call credential protocol shared by
// recipient identification and staff authorization: a long-running
// hardware read that yields a signed assertion, followed by an exchange
// of that assertion for a durable member identity. The protocol is
// implemented once and invoked per role; every invocation uses a fresh
// scan session so two roles can never be satisfied by one physical scan.
package scan

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/greenpoint-pos/kiosk/internal/model"
)

// SessionID identifies one physical scan attempt. It is generated
// client-side before the read starts so the reader service can be told
// to void the session if the operator cancels mid-read.
type SessionID string

// NewSessionID returns a fresh lexicographically sortable session id.
func NewSessionID() SessionID { return SessionID(ulid.Make().String()) }

// Assertion is the raw result of a completed hardware read: the resolved
// credential name plus a signed token binding it to the session.
type Assertion struct {
	Session      SessionID
	ResolvedName string
	Token        string // signed by the reader bridge, checked by the Verifier
}

// Reader abstracts the external credential-reader bridge.
type Reader interface {
	// Begin blocks until a credential is presented, the context is
	// cancelled, or the reader gives up. The session id is registered
	// with the bridge up front so Cancel can reference it.
	Begin(ctx context.Context, session SessionID) (Assertion, error)

	// Cancel voids an in-flight session on the bridge. Best effort: the
	// caller must not block recovery on its failure.
	Cancel(ctx context.Context, session SessionID) error
}

// Verifier exchanges a scan assertion for a durable member identity,
// independent of the reader hardware.
type Verifier interface {
	Verify(ctx context.Context, a Assertion) (model.Identity, error)
}
