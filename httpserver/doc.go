// Package httpserver implements the HTTP surface of the enclave runtime.
//
// The API has three parts: the enclave endpoints (seal, unseal, attestation
// key generation and quoting, all executed as workloads on donated threads),
// the host endpoint through which a host thread donates itself as an
// execution vehicle, and the provisioning admin API through which an
// authorized operator installs the sealing master secret. Health and drain
// endpoints follow the usual livez/readyz conventions, and Prometheus metrics
// are served on a dedicated listener.
package httpserver
