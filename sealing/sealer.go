package sealing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// Sealer seals and unseals secrets under a master secret derived from the
// enclave's signer identity. The hardware derivation itself happens outside
// this package; the sealer only requires that the same master secret is
// presented inside a matching enclave instance.
type Sealer struct {
	masterSecret []byte
}

// NewSealer creates a sealer from the provided master secret.
// The master secret must be at least 32 bytes long.
func NewSealer(masterSecret []byte) (*Sealer, error) {
	if len(masterSecret) < 32 {
		return nil, errors.New("master secret must be at least 32 bytes")
	}

	secret := make([]byte, len(masterSecret))
	copy(secret, masterSecret)
	return &Sealer{masterSecret: secret}, nil
}

// sealingKey derives the AES-256 key for a given serialized header. Binding
// the header into the derivation means a secret sealed under one header can
// never decrypt under another.
func (s *Sealer) sealingKey(serializedHeader []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, s.masterSecret, []byte("enclave-secret-sealing"), serializedHeader)
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	return key, nil
}

// authenticatedData frames the serialized header and the caller's additional
// data for use as GCM additional authenticated data. The length prefix keeps
// the header/data boundary unambiguous.
func authenticatedData(serializedHeader, additionalData []byte) []byte {
	aad := make([]byte, 4+len(serializedHeader)+len(additionalData))
	binary.BigEndian.PutUint32(aad[0:4], uint32(len(serializedHeader)))
	copy(aad[4:4+len(serializedHeader)], serializedHeader)
	copy(aad[4+len(serializedHeader):], additionalData)
	return aad
}

// Seal encrypts secret under the sealer's master secret. Header and
// additionalData are stored in the clear and authenticated together with the
// ciphertext.
func (s *Sealer) Seal(header interfaces.SealedSecretHeader, additionalData, secret []byte) (interfaces.SealedSecret, error) {
	serializedHeader, err := json.Marshal(header)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: sealed secret header serialization failed: %v", interfaces.ErrInternal, err)
	}

	key, err := s.sealingKey(serializedHeader)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: %v", interfaces.ErrInternal, err)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: failed to create cipher: %v", interfaces.ErrInternal, err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: failed to create GCM: %v", interfaces.ErrInternal, err)
	}

	iv := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return interfaces.SealedSecret{}, fmt.Errorf("%w: failed to generate IV: %v", interfaces.ErrInternal, err)
	}

	// Ciphertext format: [iv][ct]
	ciphertext := aesGCM.Seal(iv, iv, secret, authenticatedData(serializedHeader, additionalData))

	return interfaces.SealedSecret{
		Header:         serializedHeader,
		AdditionalData: additionalData,
		Ciphertext:     ciphertext,
	}, nil
}

// Unseal decrypts a sealed secret and returns the plaintext. Tampering with
// the ciphertext, the header, or the additional data fails with
// ErrInvalidArgument, as does a secret sealed under a different master
// secret.
func (s *Sealer) Unseal(sealed interfaces.SealedSecret) ([]byte, error) {
	key, err := s.sealingKey(sealed.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInternal, err)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", interfaces.ErrInternal, err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", interfaces.ErrInternal, err)
	}

	if len(sealed.Ciphertext) < aesGCM.NonceSize() {
		return nil, fmt.Errorf("%w: sealed payload too short", interfaces.ErrInvalidArgument)
	}

	iv := sealed.Ciphertext[:aesGCM.NonceSize()]
	ciphertext := sealed.Ciphertext[aesGCM.NonceSize():]

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, authenticatedData(sealed.Header, sealed.AdditionalData))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot unseal the sealed payload: %v", interfaces.ErrInvalidArgument, err)
	}
	return plaintext, nil
}
