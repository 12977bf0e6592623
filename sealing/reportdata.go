package sealing

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// Versioning for the PCE sign-report protocol, which asks the provisioning
// certification enclave to endorse the attestation public key.
const (
	AttestationPublicKeyVersion = "Assertion Generator Enclave Attestation Key v0.1"
	AttestationPublicKeyPurpose = "Assertion Generator Enclave Attestation Key"
	PCESignReportPayloadVersion = "PCE Sign Report v0.1"
)

// pceSignReportUUID tags report data produced for the PCE sign-report
// protocol so verifiers can distinguish it from other report-data layouts.
var pceSignReportUUID = uuid.MustParse("ab7e55c4-2c39-4743-91e1-d1a7c9e4b6a2")

// AttestationPublicKey is a versioned wrapper around the attestation
// verifying key.
type AttestationPublicKey struct {
	PublicKey SigningKey `json:"attestation_public_key"`
	Version   string     `json:"version"`
	Purpose   string     `json:"purpose"`
}

// PCESignReportPayload is the payload whose hash is embedded in the report
// data handed to the PCE for signing.
type PCESignReportPayload struct {
	Version              string               `json:"version"`
	AttestationPublicKey AttestationPublicKey `json:"attestation_public_key"`
}

// SerializePCESignReportPayload builds and serializes the sign-report
// payload for the given attestation public key.
func SerializePCESignReportPayload(verifyingKey *ecdsa.PublicKey) ([]byte, error) {
	keyDER, err := x509.MarshalPKIXPublicKey(verifyingKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize verifying key: %v", interfaces.ErrInternal, err)
	}

	payload := PCESignReportPayload{
		Version: PCESignReportPayloadVersion,
		AttestationPublicKey: AttestationPublicKey{
			PublicKey: SigningKey{Key: keyDER, Encoding: interfaces.SigningKeyEncodingDER},
			Version:   AttestationPublicKeyVersion,
			Purpose:   AttestationPublicKeyPurpose,
		},
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: sign-report payload serialization failed: %v", interfaces.ErrInternal, err)
	}
	return serialized, nil
}

// ReportDataForPCESignReport derives the 64-byte attestation report data for
// a serialized sign-report payload: the payload hash in the first half, the
// protocol UUID in the second, remainder zero.
func ReportDataForPCESignReport(serializedPayload []byte) [64]byte {
	var reportData [64]byte
	hash := sha256.Sum256(serializedPayload)
	copy(reportData[:32], hash[:])
	copy(reportData[32:48], pceSignReportUUID[:])
	return reportData
}
