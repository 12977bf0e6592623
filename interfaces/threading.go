package interfaces

import (
	"context"
	"errors"
)

// ThreadID identifies the execution vehicle bound to a logical thread once a
// donated host thread claims it. IDs are assigned by the arriving vehicle, not
// by the scheduler, and are stable from the moment of binding until the thread
// is joined and reclaimed.
type ThreadID string

// StartRoutine is a unit of deferred work scheduled inside the enclave. The
// routine is bound to its arguments at submission time and returns an opaque
// result that is handed back to the joiner.
type StartRoutine func() any

// ThreadDonor requests execution vehicles from the host side of the trust
// boundary. A request asks for exactly one native thread to be supplied; the
// donor has no visibility into whether or when the host fulfills it beyond the
// donated thread eventually entering the enclave and claiming queued work.
type ThreadDonor interface {
	// RequestThread asks the host to donate one native execution thread.
	// The call must not assume synchronous fulfillment.
	RequestThread(ctx context.Context) error
}

// ErrNoSuchThread is returned when joining a thread ID that was never issued
// or whose thread has already been joined and reclaimed.
var ErrNoSuchThread = errors.New("no such thread")
