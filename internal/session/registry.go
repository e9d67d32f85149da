// internal/session/registry.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dealdesk/internal/common/logger"
	"dealdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "session:token:"

// TokenValidator checks a bearer token against the identity provider. A
// non-nil error means the provider no longer recognizes the token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

// Registry maps bearer tokens to live session managers. The token to
// identity binding lives in Redis so a restarted instance can rebuild a
// manager for a token it has never seen; managers themselves are local.
type Registry struct {
	rdb       *redis.Client
	backend   ProfileFetcher
	validator TokenValidator
	ttl       time.Duration
	timeout   time.Duration
	logger    logger.Logger

	mu       sync.Mutex
	sessions map[string]*Manager
}

// NewRegistry builds a registry. validator may be nil, in which case a
// stored token binding is trusted without provider introspection.
func NewRegistry(rdb *redis.Client, backend ProfileFetcher, validator TokenValidator, tokenTTL time.Duration, log logger.Logger) *Registry {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Registry{
		rdb:       rdb,
		backend:   backend,
		validator: validator,
		ttl:       tokenTTL,
		timeout:   10 * time.Second,
		logger:    log.WithFields(map[string]interface{}{"component": "session-registry"}),
		sessions:  make(map[string]*Manager),
	}
}

// Attach binds a token to an identity and starts its session manager.
func (r *Registry) Attach(ctx context.Context, token string, identity models.Identity) (*Manager, error) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}
	if err := r.rdb.Set(ctx, tokenKeyPrefix+token, payload, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store session token: %w", err)
	}

	m := NewManager(r.backend, r.timeout, r.logger)
	m.SetIdentity(&identity)

	r.mu.Lock()
	r.sessions[token] = m
	r.mu.Unlock()

	return m, nil
}

// Resolve returns the session manager for a token. Unknown tokens yield
// (nil, nil); a manager is rebuilt from Redis when this instance has not
// served the token before.
func (r *Registry) Resolve(ctx context.Context, token string) (*Manager, error) {
	r.mu.Lock()
	if m, ok := r.sessions[token]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	val, err := r.rdb.Get(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session token: %w", err)
	}

	// The binding came from the store, not from this instance's memory.
	// Introspect the token before trusting it: a token revoked at the
	// provider must not resurrect a session from a stale binding.
	if r.validator != nil {
		if verr := r.validator.ValidateToken(ctx, token); verr != nil {
			r.logger.WithError(verr).Warn("stored token rejected by identity provider", map[string]interface{}{
				"token": token[:min(8, len(token))],
			})
			if derr := r.rdb.Del(ctx, tokenKeyPrefix+token).Err(); derr != nil {
				r.logger.WithError(derr).Warn("stale token delete failed", nil)
			}
			return nil, nil
		}
	}

	var identity models.Identity
	if err := json.Unmarshal([]byte(val), &identity); err != nil {
		return nil, fmt.Errorf("decode session identity: %w", err)
	}

	m := NewManager(r.backend, r.timeout, r.logger)
	m.SetIdentity(&identity)

	r.mu.Lock()
	// Another request may have rebuilt the same token concurrently; keep
	// the first manager so both requests observe one state machine.
	if existing, ok := r.sessions[token]; ok {
		r.mu.Unlock()
		m.Close()
		return existing, nil
	}
	r.sessions[token] = m
	r.mu.Unlock()

	return m, nil
}

// Drop revokes a token and lands its manager in unauthenticated.
func (r *Registry) Drop(ctx context.Context, token string) {
	if err := r.rdb.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		r.logger.WithError(err).Warn("session token delete failed", nil)
	}

	r.mu.Lock()
	m, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()

	if ok {
		m.Logout()
		m.Close()
	}
}

// IdentityChanged is the registry's hook into backend identity-change
// notifications. A changed identity re-resolves the profile on every
// live session bound to it, so a profile created after sign-up becomes
// visible to sessions opened before it existed. A nil identity is a
// sign-out; the owning request drops its own token explicitly, so there
// is nothing registry-wide to do.
func (r *Registry) IdentityChanged(identity *models.Identity) {
	if identity == nil {
		return
	}

	r.mu.Lock()
	var matched []*Manager
	for _, m := range r.sessions {
		if id := m.Identity(); id != nil && id.ID == identity.ID {
			matched = append(matched, m)
		}
	}
	r.mu.Unlock()

	for _, m := range matched {
		m.SetIdentity(identity)
	}
}
