package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvisionFixture(t *testing.T) (*ProvisionHandler, *httptest.Server, *ecdsa.PrivateKey) {
	t.Helper()

	privPEM, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "key pair generation should succeed")

	priv, err := ParsePrivateKey([]byte(privPEM))
	require.NoError(t, err)

	handler := NewProvisionHandler(testLogger(), map[string][]byte{
		"operator-1": []byte(pubPEM),
	})

	ts := httptest.NewServer(handler.AdminRouter())
	t.Cleanup(ts.Close)

	return handler, ts, priv
}

// signedRequest builds a request carrying the operator auth headers. The
// signature covers the request path concatenated with the body.
func signedRequest(t *testing.T, priv *ecdsa.PrivateKey, method, url, path, body string) *http.Request {
	t.Helper()

	hash := sha256.Sum256([]byte(path + body))
	signature, err := ecdsa.SignASN1(rand.Reader, priv, hash[:])
	require.NoError(t, err)

	req, err := http.NewRequest(method, url+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("X-Admin-ID", "operator-1")
	req.Header.Set("X-Admin-Signature", base64.StdEncoding.EncodeToString(signature))
	return req
}

func TestProvisionHandler_Provision(t *testing.T) {
	handler, ts, priv := newProvisionFixture(t)

	masterSecret := hex.EncodeToString(bytes.Repeat([]byte{3}, 32))
	body := `{"master_secret":"` + masterSecret + `"}`

	resp, err := http.DefaultClient.Do(signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotNil(t, handler.Sealer(), "sealer should be available after provisioning")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sealer, err := handler.WaitForProvision(ctx)
	require.NoError(t, err, "provisioning wait should complete")
	assert.NotNil(t, sealer)
}

func TestProvisionHandler_RejectsUnauthenticated(t *testing.T) {
	handler, ts, _ := newProvisionFixture(t)

	body := `{"master_secret":"` + hex.EncodeToString(bytes.Repeat([]byte{3}, 32)) + `"}`
	resp, err := http.Post(ts.URL+"/provision", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, handler.Sealer())
}

func TestProvisionHandler_RejectsTamperedBody(t *testing.T) {
	_, ts, priv := newProvisionFixture(t)

	signedBody := `{"master_secret":"` + hex.EncodeToString(bytes.Repeat([]byte{3}, 32)) + `"}`
	tampered := `{"master_secret":"` + hex.EncodeToString(bytes.Repeat([]byte{4}, 32)) + `"}`

	// Reuse a signature made over a different body.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/provision", strings.NewReader(tampered))
	require.NoError(t, err)
	req.Header.Set("X-Admin-ID", "operator-1")
	req.Header.Set("X-Admin-Signature",
		signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", signedBody).Header.Get("X-Admin-Signature"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProvisionHandler_RejectsShortSecret(t *testing.T) {
	_, ts, priv := newProvisionFixture(t)

	body := `{"master_secret":"` + hex.EncodeToString([]byte("short")) + `"}`
	resp, err := http.DefaultClient.Do(signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvisionHandler_SecondProvisionFails(t *testing.T) {
	_, ts, priv := newProvisionFixture(t)

	body := `{"master_secret":"` + hex.EncodeToString(bytes.Repeat([]byte{3}, 32)) + `"}`
	resp, err := http.DefaultClient.Do(signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.DefaultClient.Do(signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvisionHandler_Status(t *testing.T) {
	_, ts, priv := newProvisionFixture(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"master_secret":"` + hex.EncodeToString(bytes.Repeat([]byte{3}, 32)) + `"}`
	resp, err = http.DefaultClient.Do(signedRequest(t, priv, http.MethodPost, ts.URL, "/provision", body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoadAdminKeys(t *testing.T) {
	_, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err)

	encoded, err := json.Marshal(map[string]any{
		"admins": []map[string]string{{"id": "operator-1", "pubkey": pubPEM}},
	})
	require.NoError(t, err)

	keys, err := LoadAdminKeys(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, []byte(pubPEM), keys["operator-1"])

	_, err = LoadAdminKeys(strings.NewReader(`{"admins":[{"id":"x","pubkey":"not pem"}]}`))
	assert.Error(t, err, "invalid PEM should be rejected")
}
