package httpserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"sync"

	"github.com/ZacharyEspiritu/asylo/attestation"
	"github.com/ZacharyEspiritu/asylo/interfaces"
	"github.com/ZacharyEspiritu/asylo/sealing"
	"github.com/ZacharyEspiritu/asylo/threading"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the enclave runtime. Sealing work is
// never executed on the request goroutine directly: it is submitted to the
// thread manager and runs on a donated thread, the same execution path every
// other enclave workload takes.
type Handler struct {
	manager *threading.Manager
	storage interfaces.StorageBackend
	log     *slog.Logger

	// abort terminates the process on a donation protocol violation.
	// Substituted in tests so the violation is observable without dying.
	abort func(violation threading.ProtocolViolation)

	mu       sync.RWMutex
	sealer   *sealing.Sealer
	attestor attestation.Provider
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - manager: thread manager that schedules workloads onto donated threads
//   - storage: backend for persisting sealed secrets across enclave restarts
//   - log: structured logger for operational insights
func NewHandler(manager *threading.Manager, storage interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		storage: storage,
		log:     log,
		abort:   abortOnViolation,
	}
}

// abortOnViolation re-raises the violation on a goroutine with no recover
// frame above it, so the runtime tears the whole process down. Panicking on
// the request goroutine would not: net/http recovers handler panics per
// connection, which downgrades a corrupted donation protocol to a dropped
// connection on a still-serving process.
func abortOnViolation(violation threading.ProtocolViolation) {
	go func() {
		panic(violation)
	}()
	select {}
}

// SetSealer installs the sealer once the master secret has been provisioned.
// Until then the seal and unseal endpoints answer 503.
func (h *Handler) SetSealer(sealer *sealing.Sealer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealer = sealer
}

func (h *Handler) currentSealer() *sealing.Sealer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sealer
}

// SetAttestationProvider installs the quote provider used by the attest
// endpoint. Without one the endpoint answers 503.
func (h *Handler) SetAttestationProvider(attestor attestation.Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attestor = attestor
}

func (h *Handler) currentAttestor() attestation.Provider {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attestor
}

// sealRequest is the body of POST /api/enclave/seal.
type sealRequest struct {
	// Secret is the base64-encoded plaintext to seal.
	Secret string `json:"secret"`

	// AdditionalData is optional base64-encoded data that is stored in the
	// clear but authenticated together with the ciphertext.
	AdditionalData string `json:"additional_data,omitempty"`
}

type sealResponse struct {
	ContentID string `json:"content_id"`
	ThreadID  string `json:"thread_id"`
}

// unsealRequest is the body of POST /api/enclave/unseal.
type unsealRequest struct {
	// ContentID is the hex-encoded identifier returned by the seal endpoint.
	ContentID string `json:"content_id"`
}

type unsealResponse struct {
	Secret         string `json:"secret"`
	AdditionalData string `json:"additional_data,omitempty"`
	ThreadID       string `json:"thread_id"`
}

type unsealResult struct {
	secret         []byte
	additionalData []byte
}

// attestationKeyRequest is the body of POST /api/enclave/attestation-key.
type attestationKeyRequest struct {
	// CertificateChains are optional chains endorsing the new key, leaf
	// first, each certificate base64 encoded.
	CertificateChains []interfaces.CertificateChain `json:"certificate_chains,omitempty"`
}

type attestationKeyResponse struct {
	ContentID    string `json:"content_id"`
	VerifyingKey string `json:"verifying_key"`
	ThreadID     string `json:"thread_id"`
}

// attestRequest is the body of POST /api/enclave/attest.
type attestRequest struct {
	// ContentID is the hex identifier of a sealed attestation key.
	ContentID string `json:"content_id"`
}

type attestResponse struct {
	Quote      string `json:"quote"`
	ReportData string `json:"report_data"`
	ThreadID   string `json:"thread_id"`
}

type attestationKeyResult struct {
	id           interfaces.ContentID
	verifyingKey []byte
}

type attestResult struct {
	quote      []byte
	reportData [64]byte
}

// HandleSeal seals a secret and persists the sealed blob.
//
// URL format: POST /api/enclave/seal
// Request body: JSON with a base64 "secret" and optional base64 "additional_data".
// Response: JSON with the hex content ID of the stored sealed secret and the
// ID of the thread that performed the work.
func (h *Handler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	sealer := h.currentSealer()
	if sealer == nil {
		http.Error(w, "Sealing not provisioned", http.StatusServiceUnavailable)
		return
	}

	var req sealRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	secret, err := base64.StdEncoding.DecodeString(req.Secret)
	if err != nil || len(secret) == 0 {
		http.Error(w, "Invalid or empty secret", http.StatusBadRequest)
		return
	}

	var additionalData []byte
	if req.AdditionalData != "" {
		additionalData, err = base64.StdEncoding.DecodeString(req.AdditionalData)
		if err != nil {
			http.Error(w, "Invalid additional data", http.StatusBadRequest)
			return
		}
	}

	threadID, result, err := h.runWorkload(r.Context(), func() any {
		sealed, err := sealer.Seal(sealing.DefaultSecretHeader(), additionalData, secret)
		if err != nil {
			return fmt.Errorf("failed to seal secret: %w", err)
		}

		blob, err := json.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("failed to serialize sealed secret: %w", err)
		}

		id, err := h.storage.Store(r.Context(), blob, interfaces.SealedSecretType)
		if err != nil {
			return fmt.Errorf("failed to store sealed secret: %w", err)
		}
		return id
	})
	if err != nil {
		h.log.Error("Seal workload failed", "err", err)
		h.writeWorkloadError(w, err)
		return
	}

	id := result.(interfaces.ContentID)
	writeJSON(w, sealResponse{
		ContentID: id.String(),
		ThreadID:  string(threadID),
	})
}

// HandleUnseal fetches a sealed secret from storage and unseals it.
//
// URL format: POST /api/enclave/unseal
// Request body: JSON with the hex "content_id" of a previously sealed secret.
// Response: JSON with the base64 plaintext and additional data.
func (h *Handler) HandleUnseal(w http.ResponseWriter, r *http.Request) {
	sealer := h.currentSealer()
	if sealer == nil {
		http.Error(w, "Sealing not provisioned", http.StatusServiceUnavailable)
		return
	}

	var req unsealRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contentID, err := interfaces.NewContentIDFromHex(req.ContentID)
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}

	threadID, result, err := h.runWorkload(r.Context(), func() any {
		blob, err := h.storage.Fetch(r.Context(), contentID, interfaces.SealedSecretType)
		if err != nil {
			return fmt.Errorf("failed to fetch sealed secret: %w", err)
		}

		var sealed interfaces.SealedSecret
		if err := json.Unmarshal(blob, &sealed); err != nil {
			return fmt.Errorf("%w: malformed sealed secret: %v", interfaces.ErrInvalidArgument, err)
		}

		secret, err := sealer.Unseal(sealed)
		if err != nil {
			return err
		}
		return unsealResult{secret: secret, additionalData: sealed.AdditionalData}
	})
	if err != nil {
		h.log.Error("Unseal workload failed", "err", err)
		h.writeWorkloadError(w, err)
		return
	}

	res := result.(unsealResult)
	writeJSON(w, unsealResponse{
		Secret:         base64.StdEncoding.EncodeToString(res.secret),
		AdditionalData: base64.StdEncoding.EncodeToString(res.additionalData),
		ThreadID:       string(threadID),
	})
}

// HandleAttestationKey generates a fresh attestation key inside the enclave,
// seals it together with its endorsing certificate chains, and persists the
// sealed secret.
//
// URL format: POST /api/enclave/attestation-key
// Request body: JSON with optional base64 "certificate_chains".
// Response: JSON with the content ID of the sealed key and the PKIX DER
// verifying key (base64).
func (h *Handler) HandleAttestationKey(w http.ResponseWriter, r *http.Request) {
	sealer := h.currentSealer()
	if sealer == nil {
		http.Error(w, "Sealing not provisioned", http.StatusServiceUnavailable)
		return
	}

	var req attestationKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	threadID, result, err := h.runWorkload(r.Context(), func() any {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate attestation key: %w", err)
		}

		sealed, err := sealing.CreateSealedSecret(sealer, sealing.DefaultSecretHeader(), req.CertificateChains, key)
		if err != nil {
			return fmt.Errorf("failed to seal attestation key: %w", err)
		}

		blob, err := json.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("failed to serialize sealed secret: %w", err)
		}

		id, err := h.storage.Store(r.Context(), blob, interfaces.SealedSecretType)
		if err != nil {
			return fmt.Errorf("failed to store sealed attestation key: %w", err)
		}

		verifyingKey, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return fmt.Errorf("failed to serialize verifying key: %w", err)
		}
		return attestationKeyResult{id: id, verifyingKey: verifyingKey}
	})
	if err != nil {
		h.log.Error("Attestation key workload failed", "err", err)
		h.writeWorkloadError(w, err)
		return
	}

	res := result.(attestationKeyResult)
	writeJSON(w, attestationKeyResponse{
		ContentID:    res.id.String(),
		VerifyingKey: base64.StdEncoding.EncodeToString(res.verifyingKey),
		ThreadID:     string(threadID),
	})
}

// HandleAttest produces a quote over a sealed attestation key. The report
// data is the PCE sign-report digest of the key's verifying key, so the quote
// binds the platform identity to that exact key.
//
// URL format: POST /api/enclave/attest
// Request body: JSON with the hex "content_id" of a sealed attestation key.
// Response: JSON with the base64 quote and the hex report data it covers.
func (h *Handler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	sealer := h.currentSealer()
	if sealer == nil {
		http.Error(w, "Sealing not provisioned", http.StatusServiceUnavailable)
		return
	}
	attestor := h.currentAttestor()
	if attestor == nil {
		http.Error(w, "Attestation not configured", http.StatusServiceUnavailable)
		return
	}

	var req attestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contentID, err := interfaces.NewContentIDFromHex(req.ContentID)
	if err != nil {
		http.Error(w, "Invalid content ID", http.StatusBadRequest)
		return
	}

	threadID, result, err := h.runWorkload(r.Context(), func() any {
		blob, err := h.storage.Fetch(r.Context(), contentID, interfaces.SealedSecretType)
		if err != nil {
			return fmt.Errorf("failed to fetch sealed attestation key: %w", err)
		}

		var sealed interfaces.SealedSecret
		if err := json.Unmarshal(blob, &sealed); err != nil {
			return fmt.Errorf("%w: malformed sealed secret: %v", interfaces.ErrInvalidArgument, err)
		}

		key, _, err := sealing.ExtractAttestationKeyAndCertChains(sealer, sealed)
		if err != nil {
			return err
		}

		payload, err := sealing.SerializePCESignReportPayload(&key.PublicKey)
		if err != nil {
			return err
		}
		reportData := sealing.ReportDataForPCESignReport(payload)

		quote, err := attestor.Attest(reportData)
		if err != nil {
			return fmt.Errorf("failed to generate quote: %w", err)
		}
		return attestResult{quote: quote, reportData: reportData}
	})
	if err != nil {
		h.log.Error("Attest workload failed", "err", err)
		h.writeWorkloadError(w, err)
		return
	}

	res := result.(attestResult)
	writeJSON(w, attestResponse{
		Quote:      base64.StdEncoding.EncodeToString(res.quote),
		ReportData: hex.EncodeToString(res.reportData[:]),
		ThreadID:   string(threadID),
	})
}

// HandleEnter consumes the calling thread as a donated execution vehicle.
// The request goroutine is pinned to its OS thread, claims the oldest queued
// workload under the thread ID from the URL, and runs it to completion.
//
// URL format: POST /api/host/enter/{thread_id}
//
// Entering with no queued workload is a donation protocol violation and
// terminates the process, mirroring what a spurious thread entering an
// enclave does.
func (h *Handler) HandleEnter(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if threadID == "" {
		http.Error(w, "Missing thread ID in URL", http.StatusBadRequest)
		return
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h.log.Debug("Host thread entering", slog.String("thread_id", threadID))
	if !h.enter(interfaces.ThreadID(threadID)) {
		http.Error(w, "Donation protocol violation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{
		"thread_id": threadID,
		"status":    "completed",
	})
}

// enter claims and runs a queued workload on the calling vehicle. A donation
// protocol violation is caught here, on the inside of net/http's recover, and
// escalated to a process abort; letting it propagate would only sever one
// connection.
func (h *Handler) enter(id interfaces.ThreadID) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			violation, isViolation := v.(threading.ProtocolViolation)
			if !isViolation {
				panic(v)
			}
			h.log.Error("Donation protocol violated, aborting", "err", violation, slog.String("thread_id", string(id)))
			h.abort(violation)
		}
	}()

	h.manager.ClaimAndRun(id)
	return true
}

// runWorkload schedules routine on a donated thread and waits for its result.
// A routine returning an error is an ordinary workload failure, reported as
// the error return.
func (h *Handler) runWorkload(ctx context.Context, routine interfaces.StartRoutine) (interfaces.ThreadID, any, error) {
	threadID, err := h.manager.Submit(ctx, routine)
	if err != nil {
		return "", nil, fmt.Errorf("failed to schedule workload: %w", err)
	}

	result, err := h.manager.Join(threadID)
	if err != nil {
		return threadID, nil, fmt.Errorf("failed to join workload: %w", err)
	}
	if err, ok := result.(error); ok {
		return threadID, nil, err
	}
	return threadID, result, nil
}

// writeWorkloadError maps workload errors to HTTP status codes.
func (h *Handler) writeWorkloadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrContentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
