// Package threading implements the enclave-side thread scheduler built on
// donated host threads.
//
// An enclave cannot call the operating system's thread-creation primitive.
// Instead, submitted work is queued inside the enclave while a request is sent
// to the host asking it to donate one native thread. The donated thread later
// enters the enclave with no assigned work and claims the oldest queued
// thread, binding its identity to it and running it to completion. The result
// is that Submit and Join behave like ordinary thread create and join even
// though the execution vehicle arrives asynchronously from outside the trust
// boundary.
//
// # Lifecycle
//
// Every logical thread moves strictly forward through four states:
//
//	QUEUED -> RUNNING -> DONE -> JOINED
//
// QUEUED threads are owned by the manager's pending queue. A thread enters
// RUNNING the instant a donated vehicle binds its identity, which also
// unblocks the submitter. DONE is reached when the start routine returns, and
// JOINED is claimed by exactly one successful Join call, after which the
// thread is removed from the manager and may be collected.
//
// # Locking
//
// Two coarse locks guard only the pending queue and the claimed-thread table;
// they are never held across a wait, never nested with each other, and never
// held while the user routine runs. Each thread carries its own mutex and
// condition variable ordering its state transitions and making its identity
// and result safely visible to waiters.
//
// # Protocol violations
//
// Claiming with an empty queue, transitioning a thread out of order, or
// binding a duplicate identity indicates a coordination bug in the
// surrounding system. These raise a ProtocolViolation panic rather than
// returning an error: continuing with a corrupted scheduler invariant is
// worse than crashing.
package threading
