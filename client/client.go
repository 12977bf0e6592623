// Package client provides a thin HTTP client for the enclave runtime API.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// EnclaveClient talks to an enclaved instance.
type EnclaveClient struct {
	// BaseURL is the base URL of the enclave API.
	BaseURL string

	// Client is used for requests; http.DefaultClient when nil.
	Client *http.Client
}

type sealRequest struct {
	Secret         string `json:"secret"`
	AdditionalData string `json:"additional_data,omitempty"`
}

type sealResponse struct {
	ContentID string `json:"content_id"`
	ThreadID  string `json:"thread_id"`
}

type unsealRequest struct {
	ContentID string `json:"content_id"`
}

type unsealResponse struct {
	Secret         string `json:"secret"`
	AdditionalData string `json:"additional_data,omitempty"`
	ThreadID       string `json:"thread_id"`
}

type attestationKeyResponse struct {
	ContentID    string `json:"content_id"`
	VerifyingKey string `json:"verifying_key"`
	ThreadID     string `json:"thread_id"`
}

type attestRequest struct {
	ContentID string `json:"content_id"`
}

type attestResponse struct {
	Quote      string `json:"quote"`
	ReportData string `json:"report_data"`
	ThreadID   string `json:"thread_id"`
}

func (c *EnclaveClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *EnclaveClient) postJSON(ctx context.Context, path string, body any, headers http.Header, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("could not parse response: %w", err)
		}
	}
	return nil
}

// Seal seals a secret inside the enclave and returns the content ID of the
// stored sealed blob.
func (c *EnclaveClient) Seal(ctx context.Context, secret, additionalData []byte) (interfaces.ContentID, error) {
	var resp sealResponse
	err := c.postJSON(ctx, "/api/enclave/seal", sealRequest{
		Secret:         base64.StdEncoding.EncodeToString(secret),
		AdditionalData: base64.StdEncoding.EncodeToString(additionalData),
	}, nil, &resp)
	if err != nil {
		return interfaces.ContentID{}, err
	}

	return interfaces.NewContentIDFromHex(resp.ContentID)
}

// Unseal recovers a previously sealed secret. It returns the plaintext and
// the additional data that was authenticated with it.
func (c *EnclaveClient) Unseal(ctx context.Context, id interfaces.ContentID) ([]byte, []byte, error) {
	var resp unsealResponse
	err := c.postJSON(ctx, "/api/enclave/unseal", unsealRequest{ContentID: id.String()}, nil, &resp)
	if err != nil {
		return nil, nil, err
	}

	secret, err := base64.StdEncoding.DecodeString(resp.Secret)
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode secret: %w", err)
	}

	var additionalData []byte
	if resp.AdditionalData != "" {
		additionalData, err = base64.StdEncoding.DecodeString(resp.AdditionalData)
		if err != nil {
			return nil, nil, fmt.Errorf("could not decode additional data: %w", err)
		}
	}
	return secret, additionalData, nil
}

// CreateAttestationKey asks the enclave to generate and seal a fresh
// attestation key. It returns the content ID of the sealed key and the PKIX
// DER verifying key.
func (c *EnclaveClient) CreateAttestationKey(ctx context.Context) (interfaces.ContentID, []byte, error) {
	var resp attestationKeyResponse
	if err := c.postJSON(ctx, "/api/enclave/attestation-key", struct{}{}, nil, &resp); err != nil {
		return interfaces.ContentID{}, nil, err
	}

	id, err := interfaces.NewContentIDFromHex(resp.ContentID)
	if err != nil {
		return interfaces.ContentID{}, nil, err
	}

	verifyingKey, err := base64.StdEncoding.DecodeString(resp.VerifyingKey)
	if err != nil {
		return interfaces.ContentID{}, nil, fmt.Errorf("could not decode verifying key: %w", err)
	}
	return id, verifyingKey, nil
}

// Attest requests a quote over the sealed attestation key identified by id.
// It returns the raw quote and the 64-byte report data it covers.
func (c *EnclaveClient) Attest(ctx context.Context, id interfaces.ContentID) ([]byte, [64]byte, error) {
	var reportData [64]byte

	var resp attestResponse
	if err := c.postJSON(ctx, "/api/enclave/attest", attestRequest{ContentID: id.String()}, nil, &resp); err != nil {
		return nil, reportData, err
	}

	quote, err := base64.StdEncoding.DecodeString(resp.Quote)
	if err != nil {
		return nil, reportData, fmt.Errorf("could not decode quote: %w", err)
	}

	raw, err := hex.DecodeString(resp.ReportData)
	if err != nil || len(raw) != len(reportData) {
		return nil, reportData, fmt.Errorf("could not decode report data %q", resp.ReportData)
	}
	copy(reportData[:], raw)
	return quote, reportData, nil
}

// ProvisionMasterSecret installs the sealing master secret through the admin
// API, signing the request with the operator's private key.
func (c *EnclaveClient) ProvisionMasterSecret(ctx context.Context, adminID string, key *ecdsa.PrivateKey, masterSecret []byte) error {
	body := fmt.Sprintf(`{"master_secret":%q}`, hex.EncodeToString(masterSecret))

	// The signature covers the request path concatenated with the body.
	const path = "/admin/provision"
	hash := sha256.Sum256([]byte(path + body))
	signature, err := ecdsa.SignASN1(rand.Reader, key, hash[:])
	if err != nil {
		return fmt.Errorf("could not sign provisioning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-ID", adminID)
	req.Header.Set("X-Admin-Signature", base64.StdEncoding.EncodeToString(signature))

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not request provisioning: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provisioning returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
