// internal/catalog/synchronizer_test.go
package catalog

import (
	"testing"
	"time"

	"dealdesk/internal/backend"
	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

// fakeSource captures subscription callbacks so tests can push snapshots
// and errors by hand.
type fakeSource struct {
	onSnapshot   backend.SnapshotFunc
	onError      backend.ErrorFunc
	unsubscribes int
	submitterUID string
}

func (f *fakeSource) SubscribeApprovedDeals(onSnapshot backend.SnapshotFunc, onError backend.ErrorFunc) func() {
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() { f.unsubscribes++ }
}

func (f *fakeSource) SubscribeDealsBySubmitter(submitterUID string, onSnapshot backend.SnapshotFunc, onError backend.ErrorFunc) func() {
	f.submitterUID = submitterUID
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() { f.unsubscribes++ }
}

func deals(ids ...string) []models.Deal {
	out := make([]models.Deal, len(ids))
	for i, id := range ids {
		out[i] = models.Deal{ID: id}
	}
	return out
}

// ==========================
// Mirror Tests
// ==========================

func TestSynchronizer_SnapshotUnavailableBeforeFirstDelivery(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	_, loaded := sync.Snapshot()
	assert.False(t, loaded)
}

func TestSynchronizer_EachDeliveryReplacesTheMirror(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	source.onSnapshot(deals("a", "b"))

	got, loaded := sync.Snapshot()
	require.True(t, loaded)
	require.Len(t, got, 2)

	// A deal disappeared backend-side; the replacement must not merge.
	source.onSnapshot(deals("b"))

	got, _ = sync.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestSynchronizer_EmptySnapshotIsEmptyNotUnavailable(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	source.onSnapshot(deals())

	got, loaded := sync.Snapshot()
	assert.True(t, loaded)
	assert.Empty(t, got)
	assert.NoError(t, sync.Err())
}

func TestSynchronizer_SnapshotReturnsACopy(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	source.onSnapshot(deals("a", "b"))

	got, _ := sync.Snapshot()
	got[0].ID = "mutated"

	again, _ := sync.Snapshot()
	assert.Equal(t, "a", again[0].ID, "consumers must not reach the mirror through a returned slice")
}

// ==========================
// Listener Tests
// ==========================

func TestSynchronizer_ListenersObserveEveryDelivery(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	var received [][]models.Deal
	detach := sync.OnSnapshot(func(d []models.Deal) { received = append(received, d) })

	source.onSnapshot(deals("a"))
	source.onSnapshot(deals("a", "b"))
	require.Len(t, received, 2)

	detach()
	source.onSnapshot(deals("c"))
	assert.Len(t, received, 2, "a detached listener must not fire")
}

func TestSynchronizer_DetachWaitsForInFlightDelivery(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	calls := 0
	detach := sync.OnSnapshot(func([]models.Deal) {
		calls++
		entered <- struct{}{}
		<-release
	})

	go source.onSnapshot(deals("a"))
	<-entered

	detached := make(chan struct{})
	go func() {
		detach()
		close(detached)
	}()

	select {
	case <-detached:
		t.Fatal("detach returned while a delivery was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("detach never returned")
	}

	source.onSnapshot(deals("b"))
	assert.Equal(t, 1, calls, "no delivery may follow a completed detach")
}

func TestSynchronizer_WatchReplaysLoadedSnapshot(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	source.onSnapshot(deals("a"))

	var received [][]models.Deal
	detach := sync.Watch(func(d []models.Deal) { received = append(received, d) })
	defer detach()

	require.Len(t, received, 1, "a snapshot loaded before attach must be replayed")
	assert.Equal(t, "a", received[0][0].ID)

	source.onSnapshot(deals("a", "b"))
	require.Len(t, received, 2)
}

func TestSynchronizer_WatchBeforeFirstDeliveryWaits(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	var received [][]models.Deal
	detach := sync.Watch(func(d []models.Deal) { received = append(received, d) })
	defer detach()

	assert.Empty(t, received, "nothing to replay before the first delivery")

	source.onSnapshot(deals("a"))
	require.Len(t, received, 1)
}

func TestSynchronizer_TerminalErrorKeepsLastSnapshot(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))
	defer sync.Close()

	source.onSnapshot(deals("a"))
	source.onError(errors.NewSubscriptionError("feed lost", nil))

	require.Error(t, sync.Err())
	got, loaded := sync.Snapshot()
	assert.True(t, loaded, "the catalog is unavailable, not empty")
	assert.Len(t, got, 1)
}

// ==========================
// Teardown Tests
// ==========================

func TestSynchronizer_CloseStopsCallbacks(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))

	fired := 0
	sync.OnSnapshot(func([]models.Deal) { fired++ })

	sync.Close()

	// A delivery racing teardown must be dropped.
	source.onSnapshot(deals("late"))
	assert.Zero(t, fired)

	_, loaded := sync.Snapshot()
	assert.False(t, loaded)
	assert.Equal(t, 1, source.unsubscribes)
}

func TestSynchronizer_CloseIsIdempotent(t *testing.T) {
	source := &fakeSource{}
	sync := NewApproved(source, logger.NewTestLogger(t))

	sync.Close()
	sync.Close()

	assert.Equal(t, 1, source.unsubscribes)
}

func TestSynchronizer_BySubmitterScopesTheCollection(t *testing.T) {
	source := &fakeSource{}
	sync := NewBySubmitter(source, "investor-7", logger.NewTestLogger(t))
	defer sync.Close()

	assert.Equal(t, "investor-7", source.submitterUID)

	source.onSnapshot(deals("mine"))
	got, loaded := sync.Snapshot()
	require.True(t, loaded)
	assert.Equal(t, "mine", got[0].ID)
}
