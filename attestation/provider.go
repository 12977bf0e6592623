package attestation

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

// Provider generates an attestation quote binding the given report data to
// the platform's identity.
type Provider interface {
	Attest(reportData [64]byte) ([]byte, error)
}

// DummyProvider returns a fake, unverifiable quote. For tests and
// development outside real hardware.
type DummyProvider struct{}

func (DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	return []byte(fmt.Sprintf("Attestation for report data %x", reportData)), nil
}

// RemoteProvider fetches quotes from an out-of-enclave quote service.
type RemoteProvider struct {
	Address string
}

func (p *RemoteProvider) Attest(reportData [64]byte) ([]byte, error) {
	reportDataHex := hex.EncodeToString(reportData[:])

	url := fmt.Sprintf("%s/attest/%s", p.Address, reportDataHex)
	resp, err := http.DefaultClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}
