package sealing

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// SigningKey is the serialized form of an attestation signing key inside a
// sealed secret.
type SigningKey struct {
	Key      []byte                        `json:"key"`
	Encoding interfaces.SigningKeyEncoding `json:"encoding"`
}

// attestationKeySecret is the plaintext payload of the attestation key
// sealed secret.
type attestationKeySecret struct {
	AttestationKey SigningKey `json:"attestation_key"`
}

// secretAAD is the additional authenticated data bound to the sealed secret:
// the certificate chains endorsing the attestation key. They are readable
// without unsealing but cannot be detached from the key.
type secretAAD struct {
	CertificateChains []interfaces.CertificateChain `json:"certificate_chains"`
}

// CreateSealedSecret seals the attestation key together with its endorsing
// certificate chains. The chains travel as authenticated additional data; the
// key is encrypted.
func CreateSealedSecret(sealer *Sealer, header interfaces.SealedSecretHeader, chains []interfaces.CertificateChain, attestationKey *ecdsa.PrivateKey) (interfaces.SealedSecret, error) {
	keyDER, err := x509.MarshalECPrivateKey(attestationKey)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: enclave secret serialization failed: %v", interfaces.ErrInternal, err)
	}

	secret := attestationKeySecret{
		AttestationKey: SigningKey{Key: keyDER, Encoding: interfaces.SigningKeyEncodingDER},
	}
	serializedSecret, err := json.Marshal(secret)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: enclave secret serialization failed: %v", interfaces.ErrInternal, err)
	}

	serializedAAD, err := json.Marshal(secretAAD{CertificateChains: chains})
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: enclave additional authenticated data serialization failed: %v", interfaces.ErrInternal, err)
	}

	return sealer.Seal(header, serializedAAD, serializedSecret)
}

// ExtractAttestationKeyAndCertChains recovers the attestation key and its
// certificate chains from a sealed secret. The header is checked against the
// expected name/version/purpose triple before any key material is unsealed.
func ExtractAttestationKeyAndCertChains(sealer *Sealer, sealed interfaces.SealedSecret) (*ecdsa.PrivateKey, []interfaces.CertificateChain, error) {
	var header interfaces.SealedSecretHeader
	if err := json.Unmarshal(sealed.Header, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: cannot parse the sealed secret header", interfaces.ErrInvalidArgument)
	}
	if err := CheckSecretHeader(header); err != nil {
		return nil, nil, err
	}

	serializedSecret, err := sealer.Unseal(sealed)
	if err != nil {
		return nil, nil, err
	}

	var secret attestationKeySecret
	if err := json.Unmarshal(serializedSecret, &secret); err != nil {
		return nil, nil, fmt.Errorf("%w: cannot parse the sealed secret", interfaces.ErrInvalidArgument)
	}

	var aad secretAAD
	if err := json.Unmarshal(sealed.AdditionalData, &aad); err != nil {
		return nil, nil, fmt.Errorf("%w: cannot parse the additional authenticated data", interfaces.ErrInvalidArgument)
	}

	attestationKey, err := parseAttestationKey(secret.AttestationKey)
	if err != nil {
		return nil, nil, err
	}
	return attestationKey, aad.CertificateChains, nil
}

// parseAttestationKey deserializes a signing key according to its declared
// encoding.
func parseAttestationKey(signingKey SigningKey) (*ecdsa.PrivateKey, error) {
	switch signingKey.Encoding {
	case interfaces.SigningKeyEncodingDER:
		key, err := x509.ParseECPrivateKey(signingKey.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse the attestation key: %v", interfaces.ErrInvalidArgument, err)
		}
		return key, nil
	case interfaces.SigningKeyEncodingPEM:
		return nil, fmt.Errorf("%w: creating an attestation key from a PEM-encoded key is not supported", interfaces.ErrUnimplemented)
	default:
		return nil, fmt.Errorf("%w: attestation key has unknown encoding format", interfaces.ErrInvalidArgument)
	}
}
