// Package attestation produces and verifies hardware attestation quotes over
// 64-byte report data.
//
// The enclave's attest endpoint requests quotes through the Provider
// interface, binding them to the report data of a sealed attestation key.
// DCAPProvider talks to the TDX quote device, RemoteProvider defers to an
// out-of-enclave quote service, and DummyProvider stands in for hardware in
// tests and development.
package attestation
