// internal/backend/backend.go

// Package backend is the persistence and identity collaborator the rest of
// the service talks to. It bundles the Postgres store, the Redis change
// feed and the Keycloak identity provider behind one surface.
package backend

import (
	"context"
	"sync"

	"dealdesk/internal/common/auth"
	"dealdesk/internal/common/logger"
	"dealdesk/internal/common/validation"
	"dealdesk/internal/models"
)

// Session is what a successful sign-in or sign-up yields: the identity
// plus the tokens that authenticate its subsequent requests.
type Session struct {
	Identity     models.Identity `json:"identity"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresIn    int             `json:"expiresIn"`
}

// IdentityFunc observes identity changes. A nil identity means signed out.
type IdentityFunc func(*models.Identity)

// Service implements the backend contract consumed by the session manager,
// the catalog synchronizer and the negotiation initiator.
type Service struct {
	store  *Store
	feed   *Feed
	idp    *auth.KeycloakClient
	logger logger.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]IdentityFunc
}

func New(store *Store, feed *Feed, idp *auth.KeycloakClient, log logger.Logger) *Service {
	return &Service{
		store:     store,
		feed:      feed,
		idp:       idp,
		logger:    log.WithFields(map[string]interface{}{"component": "backend"}),
		listeners: make(map[int]IdentityFunc),
	}
}

// SignIn authenticates with email and password. On success every identity
// listener observes the new identity.
func (b *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	tok, err := b.idp.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	user, err := b.idp.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	identity := models.Identity{ID: user.ID, Email: user.Email}
	b.bootstrapProfile(ctx, identity, user.Attributes)
	b.notifyIdentity(&identity)

	b.logger.Info("identity signed in", map[string]interface{}{"identityId": identity.ID})

	return &Session{
		Identity:     identity,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}, nil
}

// SignUp registers a new identity and signs it in. Attributes are schema
// checked before the provider is contacted; the role profile is created
// as part of the same flow.
func (b *Service) SignUp(ctx context.Context, email, password string, attrs map[string]string) (*Session, error) {
	raw := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		raw[k] = v
	}
	if err := validation.ValidateSignupAttrs(raw); err != nil {
		return nil, err
	}

	kcAttrs := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		kcAttrs[k] = []string{v}
	}

	user, err := b.idp.SignUp(ctx, email, password, kcAttrs)
	if err != nil {
		return nil, err
	}

	identity := models.Identity{ID: user.ID, Email: user.Email}
	if _, err := b.store.CreateProfileDocument(ctx, identity, attrs); err != nil {
		return nil, err
	}

	return b.SignIn(ctx, email, password)
}

// bootstrapProfile creates a role profile on first sign-in for identities
// registered out of band, using the role attribute stored at the provider.
func (b *Service) bootstrapProfile(ctx context.Context, identity models.Identity, kcAttrs map[string][]string) {
	profile, err := b.store.FetchProfile(ctx, identity.ID)
	if err != nil || profile != nil {
		return
	}

	attrs := make(map[string]string, len(kcAttrs))
	for k, v := range kcAttrs {
		if len(v) > 0 {
			attrs[k] = v[0]
		}
	}
	if attrs["role"] == "" {
		return
	}

	if _, err := b.store.CreateProfileDocument(ctx, identity, attrs); err != nil {
		b.logger.WithError(err).Warn("profile bootstrap failed", map[string]interface{}{
			"identityId": identity.ID,
		})
	}
}

// SignOut revokes the session at the provider and notifies listeners with
// a nil identity. Listener notification happens even when revocation
// fails, so local state never outlives the user's intent to leave.
func (b *Service) SignOut(ctx context.Context, refreshToken string) error {
	err := b.idp.SignOut(ctx, refreshToken)
	b.notifyIdentity(nil)
	if err != nil {
		b.logger.WithError(err).Warn("remote sign-out failed", nil)
	}
	return err
}

// OnIdentityChange registers a listener for sign-in and sign-out events.
// The returned function removes it and is idempotent.
func (b *Service) OnIdentityChange(cb IdentityFunc) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = cb
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Service) notifyIdentity(identity *models.Identity) {
	b.mu.Lock()
	cbs := make([]IdentityFunc, 0, len(b.listeners))
	for _, cb := range b.listeners {
		cbs = append(cbs, cb)
	}
	b.mu.Unlock()

	for _, cb := range cbs {
		cb(identity)
	}
}

// ValidateToken introspects an access token at the identity provider. A
// non-nil error means the token is no longer valid there.
func (b *Service) ValidateToken(ctx context.Context, token string) error {
	_, err := b.idp.ValidateToken(ctx, token)
	return err
}

// FetchProfile resolves the role profile for an identity, nil when absent.
func (b *Service) FetchProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	return b.store.FetchProfile(ctx, identityID)
}

// CreateProfileDocument creates the role profile for an identity.
func (b *Service) CreateProfileDocument(ctx context.Context, identity models.Identity, attrs map[string]string) (*models.Profile, error) {
	return b.store.CreateProfileDocument(ctx, identity, attrs)
}

// StartNegotiation persists a negotiation record and returns its id.
func (b *Service) StartNegotiation(ctx context.Context, rec *models.NegotiationRecord) (string, error) {
	return b.store.StartNegotiation(ctx, rec)
}

// SubscribeApprovedDeals opens a full-snapshot watch on approved deals.
func (b *Service) SubscribeApprovedDeals(onSnapshot SnapshotFunc, onError ErrorFunc) func() {
	return b.feed.SubscribeApprovedDeals(onSnapshot, onError)
}

// SubscribeDealsBySubmitter opens a full-snapshot watch on one submitter's deals.
func (b *Service) SubscribeDealsBySubmitter(submitterUID string, onSnapshot SnapshotFunc, onError ErrorFunc) func() {
	return b.feed.SubscribeDealsBySubmitter(submitterUID, onSnapshot, onError)
}
