package threading

import (
	"fmt"
	"sync"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// ThreadState is the lifecycle state of a logical thread. States only ever
// advance, one step at a time.
type ThreadState int

const (
	// StateQueued means the thread is waiting in the pending queue for a
	// donated vehicle. Its identity is not yet bound.
	StateQueued ThreadState = iota
	// StateRunning means a donated vehicle has bound its identity and is
	// executing the start routine.
	StateRunning
	// StateDone means the start routine has returned and the result is
	// readable.
	StateDone
	// StateJoined is terminal: exactly one Join call has claimed the result.
	StateJoined
)

// String returns the state name.
func (s ThreadState) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateJoined:
		return "JOINED"
	default:
		return fmt.Sprintf("ThreadState(%d)", int(s))
	}
}

// ProtocolViolation describes a broken scheduler invariant. It is delivered
// by panic rather than as an error value: callers must not be able to catch
// and paper over a corrupted scheduling primitive through the ordinary error
// path.
type ProtocolViolation struct {
	Reason string
}

func (v ProtocolViolation) Error() string {
	return "thread protocol violation: " + v.Reason
}

func protocolViolation(format string, args ...any) {
	panic(ProtocolViolation{Reason: fmt.Sprintf(format, args...)})
}

// Thread is one schedulable unit of work and its lifecycle: a bound start
// routine, a result slot, and the identity of the donated vehicle that
// eventually runs it. All mutable fields are guarded by the thread's own
// mutex; the condition variable is broadcast on every state transition so
// that both enter-state and exit-state waiters wake.
type Thread struct {
	startRoutine interfaces.StartRoutine

	mu    sync.Mutex
	cond  *sync.Cond
	state ThreadState
	id    interfaces.ThreadID
	ret   any
}

// newThread creates a thread in the QUEUED state wrapping startRoutine.
func newThread(startRoutine interfaces.StartRoutine) *Thread {
	t := &Thread{startRoutine: startRoutine, state: StateQueued}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// advanceLocked moves the thread to next and wakes all waiters. The caller
// must hold t.mu. Any transition other than the single forward step is a
// protocol violation.
func (t *Thread) advanceLocked(next ThreadState) {
	if next != t.state+1 {
		protocolViolation("illegal state transition %s -> %s", t.state, next)
	}
	t.state = next
	t.cond.Broadcast()
}

// claim binds the donated vehicle's identity and moves the thread to RUNNING,
// unblocking the submitter waiting in waitClaimed. The identity is set
// exactly once, immediately before leaving QUEUED.
func (t *Thread) claim(id interfaces.ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateQueued {
		protocolViolation("claim of %s thread %s", t.state, t.id)
	}
	t.id = id
	t.advanceLocked(StateRunning)
}

// run invokes the start routine and records its result. The routine runs
// outside every scheduler lock; it may submit further work or block for an
// arbitrary duration. Running a thread that is not RUNNING, including running
// it twice, is a protocol violation.
func (t *Thread) run() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		protocolViolation("run of %s thread %s", t.state, t.id)
	}
	startRoutine := t.startRoutine
	t.mu.Unlock()

	ret := startRoutine()

	t.mu.Lock()
	t.ret = ret
	t.advanceLocked(StateDone)
	t.mu.Unlock()
}

// waitClaimed blocks until the thread exits QUEUED and returns the bound
// identity. On return the thread is at least RUNNING.
func (t *Thread) waitClaimed() interfaces.ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == StateQueued {
		t.cond.Wait()
	}
	return t.id
}

// join blocks until the thread reaches DONE, then claims the JOINED
// transition and returns the routine's result. If another joiner won the
// race, ErrNoSuchThread is returned; join is an at-most-once operation.
func (t *Thread) join() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state < StateDone {
		t.cond.Wait()
	}
	if t.state != StateDone {
		return nil, interfaces.ErrNoSuchThread
	}
	t.advanceLocked(StateJoined)
	return t.ret, nil
}

// ID returns the bound identity, or the empty ID while the thread is QUEUED.
func (t *Thread) ID() interfaces.ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// State returns the current lifecycle state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
