package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/ZacharyEspiritu/asylo/sealing"
)

// ProvisionState represents the current state of master secret provisioning.
type ProvisionState int

const (
	// StateInitial is the state before any master secret has been provisioned.
	StateInitial ProvisionState = iota

	// StateComplete indicates the sealer is operational.
	StateComplete
)

func stateToString(state ProvisionState) string {
	switch state {
	case StateInitial:
		return "initial"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ProvisionHandler processes HTTP requests for provisioning the sealing
// master secret. The enclave runtime cannot derive the master secret itself;
// it is handed in by an authorized operator after the server is up, the way a
// hardware key-provisioning step would deliver it. Until provisioning
// completes, the seal and unseal endpoints are unavailable.
//
// Operator identity is verified with ECDSA signatures over the request path
// and body, against a whitelist of operator public keys.
type ProvisionHandler struct {
	mu           sync.RWMutex
	log          *slog.Logger
	state        ProvisionState
	adminPubKeys map[string][]byte // operator ID -> public key PEM
	sealer       *sealing.Sealer
	completeChan chan struct{}
}

// NewProvisionHandler creates a provisioning handler with the given operator
// public keys (PEM encoded, keyed by operator ID).
func NewProvisionHandler(log *slog.Logger, adminPubKeys map[string][]byte) *ProvisionHandler {
	return &ProvisionHandler{
		log:          log,
		state:        StateInitial,
		adminPubKeys: adminPubKeys,
		completeChan: make(chan struct{}),
	}
}

// WaitForProvision blocks until a master secret has been provisioned or the
// context is cancelled.
func (h *ProvisionHandler) WaitForProvision(ctx context.Context) (*sealing.Sealer, error) {
	select {
	case <-h.completeChan:
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.sealer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sealer returns the provisioned sealer, or nil before provisioning completes.
func (h *ProvisionHandler) Sealer() *sealing.Sealer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sealer
}

// AdminRouter returns the router for the provisioning API.
func (h *ProvisionHandler) AdminRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.handleStatus)
	r.Post("/provision", h.handleProvision)

	return r
}

// handleStatus returns the current provisioning state.
//
// Endpoint: GET /admin/status
func (h *ProvisionHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	state := h.state
	h.mu.RUnlock()

	writeJSON(w, map[string]string{"state": stateToString(state)})
}

// handleProvision installs the sealing master secret.
//
// Endpoint: POST /admin/provision
// Body: {"master_secret": "<hex, at least 32 bytes>"}
//
// The request must carry X-Admin-ID and X-Admin-Signature headers; the
// signature covers the request path concatenated with the body.
func (h *ProvisionHandler) handleProvision(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.verifyAdmin(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var params struct {
		MasterSecret string `json:"master_secret"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	masterSecret, err := hex.DecodeString(params.MasterSecret)
	if err != nil {
		http.Error(w, "Invalid master secret encoding", http.StatusBadRequest)
		return
	}

	sealer, err := sealing.NewSealer(masterSecret)
	if err != nil {
		http.Error(w, "Invalid master secret: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	if h.state != StateInitial {
		h.mu.Unlock()
		http.Error(w, "Already provisioned", http.StatusBadRequest)
		return
	}
	h.sealer = sealer
	h.state = StateComplete
	h.mu.Unlock()

	close(h.completeChan)

	writeJSON(w, map[string]string{"message": "Master secret provisioned"})

	h.log.Info("Sealing master secret provisioned", "adminID", adminID)
}

// verifyAdmin checks if the request is from a whitelisted operator.
//
// The request must include a valid signature over the request path and body,
// created with the operator's private key.
func (h *ProvisionHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get("X-Admin-ID")
	adminSignatureStr := r.Header.Get("X-Admin-Signature")

	if adminID == "" || adminSignatureStr == "" {
		return "", false
	}

	h.mu.RLock()
	pubKeyPEM, exists := h.adminPubKeys[adminID]
	h.mu.RUnlock()

	if !exists {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	adminSignature, err := base64.StdEncoding.DecodeString(adminSignatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		h.log.Error("Failed to decode admin public key PEM", "adminID", adminID)
		return adminID, false
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		h.log.Error("Failed to parse admin public key", "adminID", adminID, "err", err)
		return adminID, false
	}

	ecdsaPubKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		h.log.Error("Admin public key is not an ECDSA key", "adminID", adminID)
		return adminID, false
	}

	// Read the body without consuming it for later handlers.
	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, err = io.ReadAll(r.Body)
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	message := r.URL.Path
	if len(bodyBytes) > 0 {
		message += string(bodyBytes)
	}
	hash := sha256.Sum256([]byte(message))

	if !ecdsa.VerifyASN1(ecdsaPubKey, hash[:], adminSignature) {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID)
		return adminID, false
	}

	h.log.Debug("Admin authentication successful", "adminID", adminID)
	return adminID, true
}

// LoadAdminKeys loads operator public keys from a JSON document of the form
// {"admins": [{"id": "...", "pubkey": "<PEM>"}]}.
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var data struct {
		Admins []struct {
			ID     string `json:"id"`
			PubKey string `json:"pubkey"`
		} `json:"admins"`
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte)
	for _, admin := range data.Admins {
		block, _ := pem.Decode([]byte(admin.PubKey))
		if block == nil {
			return nil, fmt.Errorf("invalid PEM data for admin %s", admin.ID)
		}

		if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			return nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}

		result[admin.ID] = []byte(admin.PubKey)
	}

	return result, nil
}

// GenerateAdminKeyPair generates an ECDSA key pair for an operator. The
// private key PEM goes to the operator; the public key PEM is registered with
// the ProvisionHandler.
func GenerateAdminKeyPair() (string, string, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return string(privateKeyPEM), string(publicKeyPEM), nil
}

// ParsePrivateKey parses an ECDSA private key from PEM format.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}

	return privateKey, nil
}
