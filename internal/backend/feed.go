// internal/backend/feed.go
package backend

import (
	"context"
	"sync"
	"time"

	"dealdesk/internal/common/errors"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/common/metrics"
	"dealdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

// SnapshotFunc receives the complete current deal list. Every invocation
// fully replaces the consumer's prior view.
type SnapshotFunc func([]models.Deal)

// ErrorFunc receives the terminal error of a subscription. It fires at
// most once; the subscription is dead afterwards.
type ErrorFunc func(error)

// snapshotLoader loads the full current state of a watched collection.
type snapshotLoader func(ctx context.Context) ([]models.Deal, error)

// Feed turns Redis change notifications into full-snapshot deliveries.
// The backend publishes a message on the configured channel whenever any
// deal changes; the feed reacts by reloading the complete collection and
// handing it to the subscriber. Consumers never see partial updates.
type Feed struct {
	rdb     *redis.Client
	store   *Store
	channel string
	timeout time.Duration
	logger  logger.Logger
}

func NewFeed(rdb *redis.Client, store *Store, channel string, reloadTimeout time.Duration, log logger.Logger) *Feed {
	if reloadTimeout <= 0 {
		reloadTimeout = 10 * time.Second
	}
	return &Feed{
		rdb:     rdb,
		store:   store,
		channel: channel,
		timeout: reloadTimeout,
		logger:  log.WithFields(map[string]interface{}{"component": "feed"}),
	}
}

// SubscribeApprovedDeals delivers the full approved-deal list immediately
// and again after every change notification. The returned function stops
// the subscription; it is idempotent and guarantees no callback fires
// after it returns.
func (f *Feed) SubscribeApprovedDeals(onSnapshot SnapshotFunc, onError ErrorFunc) func() {
	return f.subscribe("approved", f.store.LoadApprovedDeals, onSnapshot, onError)
}

// SubscribeDealsBySubmitter is SubscribeApprovedDeals narrowed to deals
// owned by the given identity.
func (f *Feed) SubscribeDealsBySubmitter(submitterUID string, onSnapshot SnapshotFunc, onError ErrorFunc) func() {
	load := func(ctx context.Context) ([]models.Deal, error) {
		return f.store.LoadDealsBySubmitter(ctx, submitterUID)
	}
	return f.subscribe("submitter", load, onSnapshot, onError)
}

func (f *Feed) subscribe(feedName string, load snapshotLoader, onSnapshot SnapshotFunc, onError ErrorFunc) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		feedName:   feedName,
		load:       load,
		onSnapshot: onSnapshot,
		onError:    onError,
		timeout:    f.timeout,
		cancel:     cancel,
		logger:     f.logger,
	}
	sub.pubsub = f.rdb.Subscribe(ctx, f.channel)

	go sub.run(ctx)

	return sub.unsubscribe
}

// subscription is one live watch on a deal collection. The mutex orders
// callback delivery against teardown: once closed is set, neither
// callback can fire again.
type subscription struct {
	feedName   string
	load       snapshotLoader
	onSnapshot SnapshotFunc
	onError    ErrorFunc
	timeout    time.Duration
	pubsub     *redis.PubSub
	cancel     context.CancelFunc
	logger     logger.Logger

	mu     sync.Mutex
	closed bool
}

func (s *subscription) run(ctx context.Context) {
	if !s.reload(ctx) {
		return
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				// Channel closes on unsubscribe or a dropped connection.
				// Only the latter is an error worth reporting.
				s.fail(errors.NewSubscriptionError("deal feed connection lost", nil))
				return
			}
			s.logger.Debug("change notification received", map[string]interface{}{
				"feed":    s.feedName,
				"payload": msg.Payload,
			})
			if !s.reload(ctx) {
				return
			}
		}
	}
}

// reload fetches the full collection and delivers it. Returns false when
// the subscription is terminated.
func (s *subscription) reload(ctx context.Context) bool {
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deals, err := s.load(loadCtx)
	if err != nil {
		if ctx.Err() != nil {
			// Unsubscribed mid-load; nothing to report.
			return false
		}
		s.fail(errors.NewSubscriptionError("", err))
		return false
	}

	return s.deliver(deals)
}

func (s *subscription) deliver(deals []models.Deal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.onSnapshot(deals)
	metrics.CatalogSnapshotsDelivered.WithLabelValues(s.feedName).Inc()
	return true
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.pubsub.Close()
	metrics.CatalogSubscriptionErrors.WithLabelValues(s.feedName).Inc()
	s.logger.WithError(err).Error("subscription terminated", map[string]interface{}{
		"feed": s.feedName,
	})
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *subscription) unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.pubsub.Close()
}
