// internal/catalog/synchronizer.go

// Package catalog maintains a live in-memory mirror of a deal collection.
// Each backend delivery replaces the mirror wholesale; nothing here
// patches incrementally, so the mirror always equals the latest snapshot
// the backend emitted.
package catalog

import (
	"sync"

	"dealdesk/internal/backend"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"
)

// Source is the subscription surface the synchronizer consumes.
type Source interface {
	SubscribeApprovedDeals(onSnapshot backend.SnapshotFunc, onError backend.ErrorFunc) func()
	SubscribeDealsBySubmitter(submitterUID string, onSnapshot backend.SnapshotFunc, onError backend.ErrorFunc) func()
}

// Synchronizer mirrors one deal collection. Consumers read the mirror via
// Snapshot or register a listener for push delivery. After Close, no
// listener fires again and the mirror stops updating.
type Synchronizer struct {
	logger logger.Logger

	mu        sync.Mutex
	deals     []models.Deal
	loaded    bool
	err       error
	closed    bool
	stop      func()
	nextID    int
	listeners map[int]func([]models.Deal)
}

// NewApproved mirrors the approved-deals collection.
func NewApproved(source Source, log logger.Logger) *Synchronizer {
	s := newSynchronizer(log)
	s.stop = source.SubscribeApprovedDeals(s.apply, s.terminate)
	return s
}

// NewBySubmitter mirrors the deals owned by one identity.
func NewBySubmitter(source Source, submitterUID string, log logger.Logger) *Synchronizer {
	s := newSynchronizer(log)
	s.stop = source.SubscribeDealsBySubmitter(submitterUID, s.apply, s.terminate)
	return s
}

func newSynchronizer(log logger.Logger) *Synchronizer {
	return &Synchronizer{
		logger:    log.WithFields(map[string]interface{}{"component": "catalog"}),
		listeners: make(map[int]func([]models.Deal)),
	}
}

// apply replaces the mirror with a fresh snapshot and fans it out.
// Listeners run under the mutex: once a detach or Close returns, no
// listener fires again. Listener callbacks must not call back into the
// synchronizer.
func (s *Synchronizer) apply(deals []models.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.deals = deals
	s.loaded = true
	for _, cb := range s.listeners {
		cb(deals)
	}
}

// terminate records the terminal subscription error. The mirror keeps its
// last snapshot but is flagged unavailable, not empty.
func (s *Synchronizer) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.logger.WithError(err).Warn("catalog mirror terminated", nil)
}

// Snapshot returns a copy of the current mirror and whether an initial
// snapshot has arrived yet.
func (s *Synchronizer) Snapshot() ([]models.Deal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, false
	}
	out := make([]models.Deal, len(s.deals))
	copy(out, s.deals)
	return out, true
}

// Err returns the terminal subscription error, nil while the mirror is live.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnSnapshot registers a listener invoked with every subsequent snapshot.
// The returned function removes it and is idempotent.
func (s *Synchronizer) OnSnapshot(cb func([]models.Deal)) func() {
	s.mu.Lock()
	detach := s.register(cb)
	s.mu.Unlock()
	return detach
}

// Watch registers a listener and, when a snapshot is already loaded,
// replays it to the listener immediately. Registration and replay happen
// under the same lock as delivery, so a snapshot landing concurrently is
// either replayed or delivered, never lost between the two.
func (s *Synchronizer) Watch(cb func([]models.Deal)) func() {
	s.mu.Lock()
	detach := s.register(cb)
	if s.loaded {
		cb(s.deals)
	}
	s.mu.Unlock()
	return detach
}

func (s *Synchronizer) register(cb func([]models.Deal)) func() {
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close tears down the mirror. Idempotent; once it returns, no listener
// is invoked again.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = make(map[int]func([]models.Deal))
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}
