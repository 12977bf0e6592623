// Package storage provides content-addressed persistence for sealed secrets
// and enclave configuration.
//
// A sealed secret survives enclave restarts only if it is written somewhere
// outside the enclave; the enclave re-reads and unseals it on the next start.
// Backends are addressed by the SHA-256 hash of the content, so the host
// holding the data cannot substitute a different blob without detection, and
// cannot read the sealed payload at all.
//
// Four backend types are supported, created from location URIs by the
// Factory:
//
//   - file:///var/lib/enclave - local (host-mounted) filesystem
//   - s3://bucket/prefix?region=... - Amazon S3 or compatible object storage
//   - ipfs://host:port - IPFS node or gateway
//   - vault://host:port/mount/path - HashiCorp Vault KV v2
//
// MultiBackend aggregates several backends for redundancy: stores go to all
// available backends, fetches return from the first that has the content.
package storage
