package sealing

import (
	"fmt"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// Identity of the attestation key secret. All three values must match
// exactly for an unseal to proceed.
const (
	SecretName    = "Assertion Generator Enclave Secret"
	SecretVersion = "Assertion Generator Enclave Secret v0.1"
	SecretPurpose = "Assertion Generator Enclave Attestation Key and Certificates"
)

// DefaultSecretHeader returns the header under which the attestation key
// secret is sealed.
func DefaultSecretHeader() interfaces.SealedSecretHeader {
	return interfaces.SealedSecretHeader{
		Name:    SecretName,
		Version: SecretVersion,
		Purpose: SecretPurpose,
	}
}

// CheckSecretHeader verifies that header identifies the attestation key
// secret. Any mismatch fails with ErrInvalidArgument before key material is
// examined.
func CheckSecretHeader(header interfaces.SealedSecretHeader) error {
	if header.Name != SecretName {
		return fmt.Errorf("%w: invalid sealed secret header: incorrect secret name", interfaces.ErrInvalidArgument)
	}
	if header.Version != SecretVersion {
		return fmt.Errorf("%w: invalid sealed secret header: incorrect secret version", interfaces.ErrInvalidArgument)
	}
	if header.Purpose != SecretPurpose {
		return fmt.Errorf("%w: invalid sealed secret header: incorrect secret purpose", interfaces.ErrInvalidArgument)
	}
	return nil
}
