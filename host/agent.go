package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DonationAgent is the host-side peer of RemoteDonor. It listens for donation
// requests from the enclave and answers each one by dedicating an OS thread
// that re-enters the enclave through its host-entry endpoint.
type DonationAgent struct {
	// EnclaveAddr is the base URL of the enclave API.
	EnclaveAddr string

	// Client is used for enter calls; http.DefaultClient when nil.
	Client *http.Client

	// Log receives donation lifecycle events.
	Log *slog.Logger

	srv *http.Server
}

// Router returns the agent's HTTP router. The enclave's RemoteDonor posts to
// /donate/{nonce}; the agent acknowledges with 202 and fulfills the donation
// asynchronously.
func (a *DonationAgent) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/donate/{nonce}", a.handleDonate)
	return r
}

func (a *DonationAgent) handleDonate(w http.ResponseWriter, r *http.Request) {
	nonce := r.PathValue("nonce")
	if _, err := uuid.Parse(nonce); err != nil {
		http.Error(w, "Invalid donation nonce", http.StatusBadRequest)
		return
	}

	a.Log.Debug("Donation requested", slog.String("nonce", nonce))

	go func() {
		if err := a.donate(context.Background()); err != nil {
			a.Log.Error("Donation failed", "err", err, slog.String("nonce", nonce))
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// donate dedicates the calling goroutine's OS thread to one enclave entry.
// The enter call does not return until the claimed workload has run to
// completion, which is exactly the occupancy a donated thread has.
func (a *DonationAgent) donate(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	threadID := uuid.NewString()
	url := fmt.Sprintf("%s/api/host/enter/%s", a.EnclaveAddr, threadID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("building enter request: %w", err)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	a.Log.Debug("Host thread entering enclave", slog.String("thread_id", threadID))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("entering enclave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("enclave entry returned status %d: %s", resp.StatusCode, string(body))
	}

	a.Log.Debug("Donated thread returned", slog.String("thread_id", threadID))
	return nil
}

// ListenAndServe runs the agent on listenAddr until Shutdown is called.
func (a *DonationAgent) ListenAndServe(listenAddr string) error {
	a.srv = &http.Server{
		Addr:        listenAddr,
		Handler:     a.Router(),
		ReadTimeout: 5 * time.Second,
	}
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the agent's listener.
func (a *DonationAgent) Shutdown(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}
