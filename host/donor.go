package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/google/uuid"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

// Claimer consumes a donated execution vehicle. It is implemented by
// threading.Manager.
type Claimer interface {
	// ClaimAndRun binds id to the oldest queued thread and runs it to
	// completion on the calling vehicle.
	ClaimAndRun(id interfaces.ThreadID)
}

// GoroutineDonor supplies execution vehicles from inside the process. Each
// donation request spawns one goroutine pinned to its own OS thread for the
// lifetime of the claimed routine, mirroring the occupancy semantics of a
// thread donated by a separate host process.
type GoroutineDonor struct {
	claimer Claimer
}

// NewGoroutineDonor creates an in-process donor. The claimer is attached
// separately because the scheduler and its donor reference each other.
func NewGoroutineDonor() *GoroutineDonor {
	return &GoroutineDonor{}
}

// Attach sets the scheduler that donated vehicles enter.
func (d *GoroutineDonor) Attach(claimer Claimer) {
	d.claimer = claimer
}

// RequestThread donates one vehicle with a fresh identity. The spawned
// vehicle is not reusable: it claims exactly one thread and is occupied until
// that thread's routine returns.
func (d *GoroutineDonor) RequestThread(ctx context.Context) error {
	if d.claimer == nil {
		return errors.New("goroutine donor has no attached claimer")
	}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		d.claimer.ClaimAndRun(interfaces.ThreadID(uuid.NewString()))
	}()
	return nil
}

// RemoteDonor forwards donation requests to a host daemon outside the trust
// boundary. The daemon is expected to spawn a native thread that re-enters
// the enclave through the host-entry endpoint.
type RemoteDonor struct {
	// Address is the base URL of the host donation service.
	Address string

	// Client is used for requests; http.DefaultClient when nil.
	Client *http.Client
}

// RequestThread posts a donation request to the host service. The request
// carries a nonce so the host can deduplicate retries; fulfillment is not
// awaited.
func (d *RemoteDonor) RequestThread(ctx context.Context) error {
	url := fmt.Sprintf("%s/donate/%s", d.Address, uuid.NewString())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("building donation request: %w", err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling host donation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("host donation service returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
