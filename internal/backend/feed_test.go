// internal/backend/feed_test.go
package backend

import (
	"sync"
	"testing"
	"time"

	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "deals:changed"

// ==========================
// Test Helper Functions
// ==========================

func createTestFeed(t *testing.T) (*Feed, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewTestLogger(t)
	store := NewStore(db, log)
	feed := NewFeed(rdb, store, testChannel, 5*time.Second, log)
	return feed, mock, mr
}

func expectApprovedLoad(mock sqlmock.Sqlmock, ids ...string) {
	rows := dealRows()
	for _, id := range ids {
		rows = addDealRow(rows, id, "inv-1")
	}
	mock.ExpectQuery("SELECT (.+) FROM deals WHERE status =").
		WithArgs(models.DealStatusApproved).
		WillReturnRows(rows)
}

// snapshotCollector records deliveries thread-safely.
type snapshotCollector struct {
	mu        sync.Mutex
	snapshots [][]models.Deal
	errs      []error
}

func (c *snapshotCollector) onSnapshot(deals []models.Deal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, deals)
}

func (c *snapshotCollector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *snapshotCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

func (c *snapshotCollector) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *snapshotCollector) last() []models.Deal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return nil
	}
	return c.snapshots[len(c.snapshots)-1]
}

func waitForSnapshots(t *testing.T, c *snapshotCollector, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.count() >= n },
		2*time.Second, 10*time.Millisecond, "expected %d snapshots, got %d", n, c.count())
}

// ==========================
// Subscription Tests
// ==========================

func TestFeed_DeliversInitialSnapshot(t *testing.T) {
	feed, mock, _ := createTestFeed(t)
	expectApprovedLoad(mock, "d1", "d2")

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeApprovedDeals(collector.onSnapshot, collector.onError)
	defer unsubscribe()

	waitForSnapshots(t, collector, 1)
	assert.Len(t, collector.last(), 2)
	assert.Zero(t, collector.errorCount())
}

func TestFeed_ChangeNotificationTriggersFullReload(t *testing.T) {
	feed, mock, mr := createTestFeed(t)
	expectApprovedLoad(mock, "d1")
	expectApprovedLoad(mock, "d1", "d2")

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeApprovedDeals(collector.onSnapshot, collector.onError)
	defer unsubscribe()

	waitForSnapshots(t, collector, 1)

	mr.Publish(testChannel, "deal added")

	waitForSnapshots(t, collector, 2)
	assert.Len(t, collector.last(), 2, "each delivery carries the complete current list")
}

func TestFeed_UnsubscribeStopsDeliveries(t *testing.T) {
	feed, mock, mr := createTestFeed(t)
	expectApprovedLoad(mock, "d1")

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeApprovedDeals(collector.onSnapshot, collector.onError)

	waitForSnapshots(t, collector, 1)

	unsubscribe()
	mr.Publish(testChannel, "change after teardown")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, collector.count(), "no callback may fire after unsubscribe")
	assert.Zero(t, collector.errorCount())
}

func TestFeed_UnsubscribeIsIdempotent(t *testing.T) {
	feed, mock, _ := createTestFeed(t)
	expectApprovedLoad(mock, "d1")

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeApprovedDeals(collector.onSnapshot, collector.onError)

	waitForSnapshots(t, collector, 1)

	unsubscribe()
	unsubscribe()

	assert.Zero(t, collector.errorCount())
}

func TestFeed_LoadFailureTerminatesWithSingleError(t *testing.T) {
	feed, mock, _ := createTestFeed(t)
	mock.ExpectQuery("SELECT (.+) FROM deals WHERE status =").
		WithArgs(models.DealStatusApproved).
		WillReturnError(assert.AnError)

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeApprovedDeals(collector.onSnapshot, collector.onError)

	require.Eventually(t, func() bool { return collector.errorCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	assert.Zero(t, collector.count())

	// Terminated subscription: unsubscribe is a no-op, no second error.
	unsubscribe()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, collector.errorCount())
}

func TestFeed_SubscribeBySubmitterScopesQueries(t *testing.T) {
	feed, mock, _ := createTestFeed(t)
	mock.ExpectQuery("SELECT (.+) FROM deals WHERE submitter_uid =").
		WithArgs("inv-9").
		WillReturnRows(addDealRow(dealRows(), "mine", "inv-9"))

	collector := &snapshotCollector{}
	unsubscribe := feed.SubscribeDealsBySubmitter("inv-9", collector.onSnapshot, collector.onError)
	defer unsubscribe()

	waitForSnapshots(t, collector, 1)
	require.Len(t, collector.last(), 1)
	assert.Equal(t, "inv-9", collector.last()[0].SubmitterUID)
}
