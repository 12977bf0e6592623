package threading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyEspiritu/asylo/interfaces"
)

func requireProtocolViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "Expected a protocol violation panic")
		_, ok := r.(ProtocolViolation)
		require.True(t, ok, "Panic value should be a ProtocolViolation, got %T", r)
	}()
	fn()
}

func TestThread_Lifecycle(t *testing.T) {
	thread := newThread(func() any { return "result" })
	assert.Equal(t, StateQueued, thread.State(), "New thread should start QUEUED")
	assert.Equal(t, interfaces.ThreadID(""), thread.ID(), "Identity must be unset while QUEUED")

	thread.claim("vehicle-1")
	assert.Equal(t, StateRunning, thread.State(), "Claim should move the thread to RUNNING")
	assert.Equal(t, interfaces.ThreadID("vehicle-1"), thread.ID(), "Claim should bind the vehicle identity")

	thread.run()
	assert.Equal(t, StateDone, thread.State(), "Run should move the thread to DONE")

	ret, err := thread.join()
	require.NoError(t, err, "First join should succeed")
	assert.Equal(t, "result", ret, "Join should return the routine's result")
	assert.Equal(t, StateJoined, thread.State(), "Join should move the thread to JOINED")
}

func TestThread_ClaimTwicePanics(t *testing.T) {
	thread := newThread(func() any { return nil })
	thread.claim("vehicle-1")

	requireProtocolViolation(t, func() { thread.claim("vehicle-2") })
}

func TestThread_RunBeforeClaimPanics(t *testing.T) {
	thread := newThread(func() any { return nil })

	requireProtocolViolation(t, thread.run)
}

func TestThread_RunTwicePanics(t *testing.T) {
	thread := newThread(func() any { return nil })
	thread.claim("vehicle-1")
	thread.run()

	requireProtocolViolation(t, thread.run)
}

func TestThread_SecondJoinLosesRace(t *testing.T) {
	thread := newThread(func() any { return 7 })
	thread.claim("vehicle-1")
	thread.run()

	_, err := thread.join()
	require.NoError(t, err, "First join should succeed")

	_, err = thread.join()
	assert.ErrorIs(t, err, interfaces.ErrNoSuchThread, "Second join must not return a stale result")
}

func TestThreadState_String(t *testing.T) {
	assert.Equal(t, "QUEUED", StateQueued.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "JOINED", StateJoined.String())
}
