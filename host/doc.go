// Package host implements the enclave's view of the host-side thread
// donation service.
//
// The scheduler cannot create native threads; it can only ask the untrusted
// host to donate one. A donor forwards that request across the trust
// boundary. Donation is fire-and-forget: the only acknowledgement the enclave
// ever sees is a donated thread eventually entering and claiming queued work.
//
// Two donors are provided. GoroutineDonor supplies vehicles from within the
// same process, pinning each to its own OS thread; it backs tests and
// single-process deployments. RemoteDonor forwards requests to a separate
// host daemon over HTTP, whose donated threads enter through the server's
// host-entry endpoint.
package host
