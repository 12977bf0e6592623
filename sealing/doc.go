// Package sealing binds attestation key material to an enclave-derived
// master secret.
//
// A sealed secret carries three parts: a header naming the secret (name,
// version, purpose), additional authenticated data holding the certificate
// chains that endorse the attestation key, and the ciphertext of the key
// itself. Header and additional data travel in the clear but are
// authenticated together with the ciphertext, so neither can be swapped
// without the unseal failing.
//
// The sealing key is derived from the master secret and the serialized
// header via HKDF, so a secret sealed under one header cannot be opened under
// another even if the authenticated-data check were bypassed. Unsealing
// verifies the header's name/version/purpose triple exactly before touching
// any key material.
package sealing
