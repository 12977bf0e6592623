// Package bridge defines fixed-width types used on both sides of the enclave
// boundary.
//
// Host and enclave may disagree on the width and layout of POSIX types, so
// everything that crosses the boundary is re-expressed with explicit widths
// and enclave-neutral constant values: signal numbers, socket and address
// family constants, poll events, wait status words, timevals, resource usage,
// CPU sets, and utsname records. The scheduler is agnostic to these payloads;
// only the routine that crosses the boundary interprets them.
//
// Packed structs serialize with little-endian encoding via their
// MarshalBinary/UnmarshalBinary methods.
package bridge
