// internal/session/manager.go

// Package session owns identity and role-profile readiness. Every
// protected surface consults a Manager before rendering anything.
package session

import (
	"context"
	"sync"
	"time"

	"dealdesk/internal/common/logger"
	"dealdesk/internal/common/metrics"
	"dealdesk/internal/models"
)

// State is the readiness state of one session.
type State string

const (
	StateInitializing    State = "initializing"
	StateUnauthenticated State = "unauthenticated"
	StateProfilePending  State = "profile-pending"
	StateReady           State = "ready"
)

// ProfileFetcher resolves the role profile for an identity, nil when the
// identity has no profile yet.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, identityID string) (*models.Profile, error)
}

// Manager is the per-session identity state machine. Transitions:
// initializing -> unauthenticated when no identity arrives, or
// initializing -> profile-pending -> ready when one does. Every identity
// change bumps the generation counter; a profile resolution stamped with
// a stale generation is discarded, never applied.
//
// Profile resolution runs on the manager's own lifecycle context, never
// on the context of the request that triggered it: a session outlives
// the request that created it.
type Manager struct {
	backend      ProfileFetcher
	logger       logger.Logger
	fetchTimeout time.Duration
	retryDelay   time.Duration
	ctx          context.Context
	cancel       context.CancelFunc

	mu         sync.Mutex
	state      State
	identity   *models.Identity
	profile    *models.Profile
	generation uint64
	transient  map[string]interface{}
}

const maxProfileRetryDelay = 15 * time.Second

func NewManager(backend ProfileFetcher, fetchTimeout time.Duration, log logger.Logger) *Manager {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	metrics.SessionsActive.Inc()
	return &Manager{
		backend:      backend,
		logger:       log.WithFields(map[string]interface{}{"component": "session"}),
		fetchTimeout: fetchTimeout,
		retryDelay:   500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateInitializing,
		transient:    make(map[string]interface{}),
	}
}

// Loading reports whether identity or profile resolution is still in
// flight. No protected content may render while it is true.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateInitializing || m.state == StateProfilePending
}

// State returns the current readiness state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the current identity, nil when unauthenticated.
func (m *Manager) Identity() *models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Profile returns the resolved role profile, nil until resolution
// completes or when the identity has none.
func (m *Manager) Profile() *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// SetIdentity applies an identity change. Passing nil lands the session
// in unauthenticated. Any transient role-scoped state is cleared, and a
// profile fetch from the prior identity can no longer apply.
func (m *Manager) SetIdentity(identity *models.Identity) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.profile = nil
	m.transient = make(map[string]interface{})

	if identity == nil {
		m.identity = nil
		m.state = StateUnauthenticated
		m.mu.Unlock()
		return
	}

	m.identity = identity
	m.state = StateProfilePending
	m.mu.Unlock()

	go m.resolveProfile(gen, identity.ID)
}

// resolveProfile fetches until it gets an answer. A fetch error is not an
// answer: the session stays profile-pending and the fetch is retried with
// backoff, because a transient store failure must not be mistaken for an
// identity that genuinely has no profile yet.
func (m *Manager) resolveProfile(gen uint64, identityID string) {
	delay := m.retryDelay
	for {
		fetchCtx, cancel := context.WithTimeout(m.ctx, m.fetchTimeout)
		start := time.Now()
		profile, err := m.backend.FetchProfile(fetchCtx, identityID)
		cancel()
		metrics.ProfileFetchDuration.Observe(time.Since(start).Seconds())

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			m.logger.Debug("stale profile resolution discarded", map[string]interface{}{
				"identityId": identityID,
				"generation": gen,
			})
			return
		}
		if err == nil {
			// A nil profile leaves the identity authenticated but
			// roleless; the route guard sends it through onboarding.
			m.profile = profile
			m.state = StateReady
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		m.logger.WithError(err).Warn("profile resolution failed, retrying", map[string]interface{}{
			"identityId": identityID,
			"retryIn":    delay.String(),
		})

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < maxProfileRetryDelay {
			delay *= 2
		}
	}
}

// Logout lands the session in unauthenticated deterministically,
// independent of any in-flight profile fetch from the prior identity.
func (m *Manager) Logout() {
	m.SetIdentity(nil)
}

// SetTransient stores a piece of role-scoped client state, such as an
// in-progress onboarding draft. It is wiped on every identity change.
func (m *Manager) SetTransient(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transient[key] = value
}

// Transient returns a previously stored transient value.
func (m *Manager) Transient(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.transient[key]
	return v, ok
}

// Close stops any in-flight profile resolution and releases the
// session's liveness accounting.
func (m *Manager) Close() {
	m.cancel()
	metrics.SessionsActive.Dec()
}
