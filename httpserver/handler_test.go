package httpserver

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyEspiritu/asylo/attestation"
	"github.com/ZacharyEspiritu/asylo/host"
	"github.com/ZacharyEspiritu/asylo/interfaces"
	"github.com/ZacharyEspiritu/asylo/sealing"
	"github.com/ZacharyEspiritu/asylo/storage"
	"github.com/ZacharyEspiritu/asylo/threading"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signalDonor accepts donation requests without producing a donated thread;
// it only signals that a workload has been queued. Workloads stay queued
// until a thread enters through the API.
type signalDonor struct {
	requested chan struct{}
}

func (d *signalDonor) RequestThread(ctx context.Context) error {
	d.requested <- struct{}{}
	return nil
}

func newTestServer(t *testing.T, handler *Handler) *httptest.Server {
	t.Helper()

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		MetricsAddr:              "",
		Log:                      testLogger(),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
		ReadTimeout:              time.Second,
		WriteTimeout:             time.Second,
	}, handler, nil)
	require.NoError(t, err, "server construction should succeed")

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func newSealingHandler(t *testing.T) *Handler {
	t.Helper()

	donor := host.NewGoroutineDonor()
	manager := threading.NewManager(donor, testLogger())
	donor.Attach(manager)

	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	handler := NewHandler(manager, backend, testLogger())

	sealer, err := sealing.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	handler.SetSealer(sealer)

	return handler
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleSealUnsealRoundTrip(t *testing.T) {
	ts := newTestServer(t, newSealingHandler(t))

	secret := []byte("the attestation key bytes")
	additionalData := []byte("certificate chains")

	resp := postJSON(t, ts.URL+"/api/enclave/seal", sealRequest{
		Secret:         base64.StdEncoding.EncodeToString(secret),
		AdditionalData: base64.StdEncoding.EncodeToString(additionalData),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sealed sealResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sealed))
	assert.NotEmpty(t, sealed.ContentID, "seal should return a content ID")
	assert.NotEmpty(t, sealed.ThreadID, "seal should report the workload thread")

	resp = postJSON(t, ts.URL+"/api/enclave/unseal", unsealRequest{ContentID: sealed.ContentID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var unsealed unsealResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unsealed))

	gotSecret, err := base64.StdEncoding.DecodeString(unsealed.Secret)
	require.NoError(t, err)
	assert.Equal(t, secret, gotSecret, "unseal should recover the plaintext")

	gotAD, err := base64.StdEncoding.DecodeString(unsealed.AdditionalData)
	require.NoError(t, err)
	assert.Equal(t, additionalData, gotAD)
}

func TestHandleSealWithoutSealer(t *testing.T) {
	donor := host.NewGoroutineDonor()
	manager := threading.NewManager(donor, testLogger())
	donor.Attach(manager)

	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	handler := NewHandler(manager, backend, testLogger())
	ts := newTestServer(t, handler)

	resp := postJSON(t, ts.URL+"/api/enclave/seal", sealRequest{
		Secret: base64.StdEncoding.EncodeToString([]byte("secret")),
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleSealRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, newSealingHandler(t))

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{`},
		{name: "empty secret", body: `{"secret":""}`},
		{name: "invalid base64 secret", body: `{"secret":"not base64!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/enclave/seal", "application/json", bytes.NewReader([]byte(tt.body)))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleUnsealUnknownContentID(t *testing.T) {
	ts := newTestServer(t, newSealingHandler(t))

	resp := postJSON(t, ts.URL+"/api/enclave/unseal", unsealRequest{
		ContentID: interfaces.ComputeID([]byte("never sealed")).String(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleUnsealInvalidContentID(t *testing.T) {
	ts := newTestServer(t, newSealingHandler(t))

	resp := postJSON(t, ts.URL+"/api/enclave/unseal", unsealRequest{ContentID: "zzzz"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEnterRunsQueuedWorkload(t *testing.T) {
	donor := &signalDonor{requested: make(chan struct{}, 1)}
	manager := threading.NewManager(donor, testLogger())

	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	handler := NewHandler(manager, backend, testLogger())
	ts := newTestServer(t, handler)

	ran := make(chan struct{})
	submitted := make(chan interfaces.ThreadID, 1)
	go func() {
		id, err := manager.Submit(context.Background(), func() any {
			close(ran)
			return 7
		})
		if err == nil {
			submitted <- id
		}
	}()

	// The donor signal guarantees the workload is queued before the donated
	// thread enters.
	select {
	case <-donor.requested:
	case <-time.After(5 * time.Second):
		t.Fatal("workload was never queued")
	}

	resp := postJSON(t, ts.URL+"/api/host/enter/vehicle-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("workload did not run on the donated thread")
	}

	id := <-submitted
	assert.Equal(t, interfaces.ThreadID("vehicle-1"), id, "submitter should observe the donated thread's identity")

	result, err := manager.Join(id)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestHandleEnterEmptyQueueAborts(t *testing.T) {
	donor := &signalDonor{requested: make(chan struct{}, 1)}
	manager := threading.NewManager(donor, testLogger())

	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	handler := NewHandler(manager, backend, testLogger())

	aborted := make(chan threading.ProtocolViolation, 1)
	handler.abort = func(violation threading.ProtocolViolation) {
		aborted <- violation
	}

	ts := newTestServer(t, handler)

	resp := postJSON(t, ts.URL+"/api/host/enter/spurious-vehicle", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	select {
	case violation := <-aborted:
		assert.Contains(t, violation.Reason, "spurious-vehicle")
	case <-time.After(5 * time.Second):
		t.Fatal("a spurious donated thread must escalate to a process abort")
	}
}

func TestHandleAttestationKeyAndAttest(t *testing.T) {
	handler := newSealingHandler(t)
	handler.SetAttestationProvider(attestation.DummyProvider{})
	ts := newTestServer(t, handler)

	resp := postJSON(t, ts.URL+"/api/enclave/attestation-key", attestationKeyRequest{
		CertificateChains: []interfaces.CertificateChain{{[]byte("leaf"), []byte("root")}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var keyResp attestationKeyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&keyResp))
	require.NotEmpty(t, keyResp.ContentID)

	verifyingKey, err := base64.StdEncoding.DecodeString(keyResp.VerifyingKey)
	require.NoError(t, err)
	_, err = x509.ParsePKIXPublicKey(verifyingKey)
	require.NoError(t, err, "the verifying key should be PKIX DER")

	resp = postJSON(t, ts.URL+"/api/enclave/attest", attestRequest{ContentID: keyResp.ContentID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var attested attestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&attested))
	assert.NotEmpty(t, attested.ThreadID)

	reportData, err := hex.DecodeString(attested.ReportData)
	require.NoError(t, err)
	assert.Len(t, reportData, 64)

	quote, err := base64.StdEncoding.DecodeString(attested.Quote)
	require.NoError(t, err)
	assert.Contains(t, string(quote), attested.ReportData, "the quote must bind the report data")
}

func TestHandleAttestWithoutProvider(t *testing.T) {
	ts := newTestServer(t, newSealingHandler(t))

	resp := postJSON(t, ts.URL+"/api/enclave/attest", attestRequest{
		ContentID: interfaces.ComputeID([]byte("anything")).String(),
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleAttestUnknownContentID(t *testing.T) {
	handler := newSealingHandler(t)
	handler.SetAttestationProvider(attestation.DummyProvider{})
	ts := newTestServer(t, handler)

	resp := postJSON(t, ts.URL+"/api/enclave/attest", attestRequest{
		ContentID: interfaces.ComputeID([]byte("never stored")).String(),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleAttestNonKeySecret(t *testing.T) {
	handler := newSealingHandler(t)
	handler.SetAttestationProvider(attestation.DummyProvider{})
	ts := newTestServer(t, handler)

	resp := postJSON(t, ts.URL+"/api/enclave/seal", sealRequest{
		Secret: base64.StdEncoding.EncodeToString([]byte("not an attestation key")),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sealed sealResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sealed))

	resp = postJSON(t, ts.URL+"/api/enclave/attest", attestRequest{ContentID: sealed.ContentID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLogger(),
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, newSealingHandler(t), nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusOK, get("/livez").StatusCode)
	assert.Equal(t, http.StatusOK, get("/readyz").StatusCode)

	assert.Equal(t, http.StatusOK, get("/drain").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").StatusCode)

	assert.Equal(t, http.StatusOK, get("/undrain").StatusCode)
	assert.Equal(t, http.StatusOK, get("/readyz").StatusCode)
}
