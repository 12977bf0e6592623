// Package interfaces defines core interfaces and types for the enclave
// runtime, separating interface definitions from implementations.
//
// The package provides contracts for the key components of the system:
//
// # Threading
//
// ThreadDonor: Requests that the host supply a native execution thread which
// will later enter the enclave and claim queued work. Donation is
// fire-and-forget; fulfillment is only ever observed as an eventual claim.
//
// ThreadID and StartRoutine are the handle and work-unit types exchanged
// between submitters, donated threads, and joiners.
//
// # Sealing
//
// SealedSecret and SealedSecretHeader describe secrets bound to an
// enclave-derived master secret. The header's name, version, and purpose
// triple must match exactly on unseal.
//
// # Storage
//
// StorageBackend: Content-addressed storage for sealed secrets and
// configuration across multiple backend types (file, S3, IPFS, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and
// aggregates them for redundant storage.
package interfaces
