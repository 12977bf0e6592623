package interfaces

import "errors"

var (
	// ErrInvalidArgument is returned for a malformed sealed secret header,
	// an unparseable sealed payload, or an unknown key encoding.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInternal is returned when serialization of a secret or its
	// authenticated data fails.
	ErrInternal = errors.New("internal error")

	// ErrUnimplemented is returned for key encodings the sealing subsystem
	// recognizes but does not support.
	ErrUnimplemented = errors.New("unimplemented")
)

// SealedSecretHeader identifies the secret bound into a sealed blob. All three
// fields must match the sealer's expected values exactly for the secret to be
// unsealed.
type SealedSecretHeader struct {
	Name    string `json:"secret_name"`
	Version string `json:"secret_version"`
	Purpose string `json:"secret_purpose"`
}

// SigningKeyEncoding describes how a signing key is serialized inside a
// sealed secret.
type SigningKeyEncoding int

const (
	// SigningKeyEncodingUnknown is the zero value and is always rejected.
	SigningKeyEncodingUnknown SigningKeyEncoding = iota
	// SigningKeyEncodingDER holds an ASN.1 DER encoded EC private key.
	SigningKeyEncodingDER
	// SigningKeyEncodingPEM is recognized but not supported for unsealing.
	SigningKeyEncodingPEM
)

// CertificateChain is an ordered list of PEM-encoded certificates, leaf first.
type CertificateChain [][]byte

// SealedSecret is the wire form of a secret sealed to the enclave's master
// secret. Header and AdditionalData travel in the clear but are
// integrity-bound to the ciphertext as authenticated additional data.
type SealedSecret struct {
	Header         []byte `json:"sealed_secret_header"`
	AdditionalData []byte `json:"additional_authenticated_data"`
	Ciphertext     []byte `json:"ciphertext"`
}
