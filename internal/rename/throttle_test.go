package rename

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyRecorder collects throttle apply calls.
type applyRecorder struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newApplyRecorder() *applyRecorder {
	return &applyRecorder{done: make(chan string, 8)}
}

func (a *applyRecorder) apply(lobbyID, fragment string) {
	a.mu.Lock()
	a.calls = append(a.calls, fragment)
	a.mu.Unlock()
	a.done <- fragment
}

func (a *applyRecorder) applied() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRequestAppliesImmediatelyInsideBurst(t *testing.T) {
	rec := newApplyRecorder()
	th := New(10*time.Minute, 3, rec.apply, testLogger())

	appliedNow, eta := th.Request("room-1", "alpha")
	require.True(t, appliedNow)
	assert.Zero(t, eta)

	appliedNow, eta = th.Request("room-1", "beta")
	require.True(t, appliedNow)
	assert.Zero(t, eta)

	assert.Equal(t, []string{"alpha", "beta"}, rec.applied())
}

func TestThirdRequestIsDeferredUntilWindowExpiry(t *testing.T) {
	rec := newApplyRecorder()
	th := New(10*time.Minute, 3, rec.apply, testLogger())

	base := time.Now()
	th.now = func() time.Time { return base }

	th.Request("room-1", "alpha")

	th.now = func() time.Time { return base.Add(time.Minute) }
	th.Request("room-1", "beta")

	th.now = func() time.Time { return base.Add(2 * time.Minute) }
	appliedNow, eta := th.Request("room-1", "gamma")
	require.False(t, appliedNow)

	// The deferred slot opens when the oldest accepted rename ages out.
	assert.Equal(t, 8*time.Minute, eta)

	at, ok := th.PendingAt("room-1")
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Minute), at)

	// Nothing extra applied yet.
	assert.Equal(t, []string{"alpha", "beta"}, rec.applied())
}

func TestDeferredRequestsCoalesceLastWriterWins(t *testing.T) {
	rec := newApplyRecorder()
	th := New(10*time.Minute, 3, rec.apply, testLogger())

	base := time.Now()
	th.now = func() time.Time { return base }

	th.Request("room-1", "alpha")
	th.Request("room-1", "beta")
	th.Request("room-1", "gamma")
	th.Request("room-1", "delta")
	th.Request("room-1", "epsilon")

	// Only one slot is parked, holding the most recent fragment.
	th.mu.Lock()
	e := th.entries["room-1"]
	pending := e.pending
	th.mu.Unlock()
	assert.Equal(t, "epsilon", pending)
	assert.Equal(t, []string{"alpha", "beta"}, rec.applied())
}

func TestDeferredRenameFires(t *testing.T) {
	rec := newApplyRecorder()
	th := New(40*time.Millisecond, 1, rec.apply, testLogger())

	// burst of 1 defers every request, so the timer path runs immediately.
	appliedNow, _ := th.Request("room-1", "alpha")
	require.False(t, appliedNow)

	select {
	case fragment := <-rec.done:
		assert.Equal(t, "alpha", fragment)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred rename never fired")
	}

	_, ok := th.PendingAt("room-1")
	assert.False(t, ok, "fired rename should clear the pending slot")
}

func TestImmediateApplySupersedesStalePending(t *testing.T) {
	rec := newApplyRecorder()
	th := New(10*time.Minute, 2, rec.apply, testLogger())

	base := time.Now()
	th.now = func() time.Time { return base }

	appliedNow, _ := th.Request("room-1", "alpha")
	require.True(t, appliedNow)
	appliedNow, _ = th.Request("room-1", "beta")
	require.False(t, appliedNow)

	// The window has slid open again, so the next request applies on the
	// spot and takes the deferred slot with it.
	th.now = func() time.Time { return base.Add(11 * time.Minute) }
	appliedNow, _ = th.Request("room-1", "gamma")
	require.True(t, appliedNow)

	_, ok := th.PendingAt("room-1")
	assert.False(t, ok, "parked rename must not outlive a newer applied one")

	th.mu.Lock()
	e := th.entries["room-1"]
	pending, timer := e.pending, e.timer
	th.mu.Unlock()
	assert.Empty(t, pending)
	assert.Nil(t, timer)
	assert.Equal(t, []string{"alpha", "gamma"}, rec.applied())
}

func TestCancelDropsPendingRename(t *testing.T) {
	rec := newApplyRecorder()
	th := New(50*time.Millisecond, 1, rec.apply, testLogger())

	appliedNow, _ := th.Request("room-1", "alpha")
	require.False(t, appliedNow)
	th.Cancel("room-1")

	select {
	case fragment := <-rec.done:
		t.Fatalf("cancelled rename still applied: %q", fragment)
	case <-time.After(150 * time.Millisecond):
	}

	_, ok := th.PendingAt("room-1")
	assert.False(t, ok)
}

func TestWindowSlidesPerLobby(t *testing.T) {
	rec := newApplyRecorder()
	th := New(10*time.Minute, 3, rec.apply, testLogger())

	base := time.Now()
	th.now = func() time.Time { return base }
	th.Request("room-1", "a1")
	th.Request("room-1", "a2")

	// A different lobby has its own window.
	appliedNow, _ := th.Request("room-2", "b1")
	require.True(t, appliedNow)

	// Once the first lobby's oldest accept ages out, capacity returns.
	th.now = func() time.Time { return base.Add(11 * time.Minute) }
	appliedNow, _ = th.Request("room-1", "a3")
	require.True(t, appliedNow)
}
