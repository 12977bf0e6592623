package threading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// Manager matches submitted work to donated host threads. It owns a FIFO
// queue of not-yet-claimed threads and a table of claimed, not-yet-joined
// threads keyed by the identity bound at claim time.
//
// The manager is constructed explicitly and passed to its users; its lifetime
// is the process lifetime when wired by the runtime, but independent
// instances are cheap and tests create as many as they need.
type Manager struct {
	donor   interfaces.ThreadDonor
	log     *slog.Logger
	metrics *Metrics

	// queuedMu guards only queued. It is released before any wait.
	queuedMu sync.Mutex
	queued   []*Thread

	// threadsMu guards only threads. Never held together with queuedMu.
	threadsMu sync.Mutex
	threads   map[interfaces.ThreadID]*Thread
}

// NewManager creates a scheduler that asks donor for an execution vehicle on
// every submission.
func NewManager(donor interfaces.ThreadDonor, log *slog.Logger) *Manager {
	return &Manager{
		donor:   donor,
		log:     log,
		threads: make(map[interfaces.ThreadID]*Thread),
	}
}

// WithMetrics attaches scheduler metrics. Returns the manager for chaining.
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Submit queues startRoutine, requests a donated thread from the host, and
// blocks until some donated vehicle claims the work and binds its identity.
// On return the thread is claimed, at least RUNNING, and Join(id) is a valid
// call. Submission order defines the FIFO claim order; completion order is
// unconstrained.
func (m *Manager) Submit(ctx context.Context, startRoutine interfaces.StartRoutine) (interfaces.ThreadID, error) {
	thread := newThread(startRoutine)

	m.queuedMu.Lock()
	m.queued = append(m.queued, thread)
	queueLen := len(m.queued)
	m.queuedMu.Unlock()

	m.metrics.threadSubmitted(queueLen)
	m.log.Debug("Thread queued, requesting donation", slog.Int("queued", queueLen))

	if err := m.donor.RequestThread(ctx); err != nil {
		// The request never reached the host, so no vehicle will arrive for
		// this thread. Withdraw it unless a vehicle donated for an earlier
		// request already claimed it.
		if m.withdraw(thread) {
			return "", fmt.Errorf("failed to request donated thread: %w", err)
		}
	}

	id := thread.waitClaimed()
	m.log.Debug("Thread claimed", slog.String("thread_id", string(id)))
	return id, nil
}

// withdraw removes a still-queued thread from the pending queue. Reports
// whether the thread was withdrawn; false means a vehicle already claimed it
// and the submission must proceed as usual.
func (m *Manager) withdraw(thread *Thread) bool {
	m.queuedMu.Lock()
	defer m.queuedMu.Unlock()
	for i, queued := range m.queued {
		if queued == thread {
			m.queued = append(m.queued[:i], m.queued[i+1:]...)
			m.metrics.threadWithdrawn(len(m.queued))
			return true
		}
	}
	return false
}

// ClaimAndRun is called by a donated thread that has entered the enclave with
// no assigned work. It pops the oldest queued thread, binds id to it, and
// runs the start routine to completion on the calling vehicle. The call
// occupies the vehicle for the full duration of the routine.
//
// A vehicle must only be donated in response to an outstanding submission:
// claiming with an empty queue, or with an identity that is already bound,
// raises a ProtocolViolation panic.
func (m *Manager) ClaimAndRun(id interfaces.ThreadID) {
	m.queuedMu.Lock()
	if len(m.queued) == 0 {
		m.queuedMu.Unlock()
		protocolViolation("vehicle %s donated with no queued thread", id)
	}
	thread := m.queued[0]
	m.queued = m.queued[1:]
	queueLen := len(m.queued)
	m.queuedMu.Unlock()

	// Binding unblocks the submitter before the routine starts.
	thread.claim(id)

	m.threadsMu.Lock()
	if _, bound := m.threads[id]; bound {
		m.threadsMu.Unlock()
		protocolViolation("vehicle identity %s bound to two threads", id)
	}
	m.threads[id] = thread
	m.threadsMu.Unlock()

	m.metrics.threadClaimed(queueLen)
	m.log.Debug("Running claimed thread", slog.String("thread_id", string(id)))

	// No scheduler lock is held here: the routine may call Submit or Join.
	thread.run()
}

// Join blocks until the thread bound to id reaches DONE, reclaims it, and
// returns the start routine's result. Join succeeds at most once per
// identity: an unknown identity, an already-joined identity, or losing a
// race against a concurrent joiner all return ErrNoSuchThread.
func (m *Manager) Join(id interfaces.ThreadID) (any, error) {
	m.threadsMu.Lock()
	thread, ok := m.threads[id]
	m.threadsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoSuchThread, id)
	}

	// The table lock is released before waiting so a vehicle inserting
	// another thread is never blocked behind this join.
	ret, err := thread.join()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoSuchThread, id)
	}

	m.threadsMu.Lock()
	delete(m.threads, id)
	m.threadsMu.Unlock()

	m.metrics.threadJoined()
	m.log.Debug("Thread joined", slog.String("thread_id", string(id)))
	return ret, nil
}
