package profile

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindquest-service/internal/domain"
)

// DefaultStoreTimeout bounds a single profile store call.
const DefaultStoreTimeout = 10 * time.Second

// Store is the external profile collaborator. ApplyDelta must apply the
// increments atomically, de-duplicate by request id, and return the full
// authoritative profile.
type Store interface {
	ApplyDelta(ctx context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error)
}

// Reconciler owns the local optimistic profile cache and keeps it eventually
// consistent with the store. Calls are serialized per user so a delta is
// never computed against a snapshot another reconcile is still replacing.
type Reconciler struct {
	store   Store
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	users map[string]*userCache
}

type userCache struct {
	mu      sync.Mutex
	profile domain.UserProfile
	pending []queuedDelta
}

// queuedDelta is a delta that failed to reach the store. The request id is
// kept so a later retry cannot double-count on the server.
type queuedDelta struct {
	requestID string
	delta     domain.StatDelta
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStoreTimeout overrides the per-call deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// withClock is test-only for deterministic history timestamps.
func withClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		timeout: DefaultStoreTimeout,
		now:     time.Now,
		users:   make(map[string]*userCache),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed installs the authoritative profile obtained at login/signup as the
// local cache for the user.
func (r *Reconciler) Seed(profile domain.UserProfile) {
	cache := r.cacheFor(profile.ID)
	cache.mu.Lock()
	cache.profile = profile
	cache.mu.Unlock()
}

// Profile returns the current cached profile.
func (r *Reconciler) Profile(userID string) (domain.UserProfile, bool) {
	r.mu.Lock()
	cache, ok := r.users[userID]
	r.mu.Unlock()
	if !ok {
		return domain.UserProfile{}, false
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.profile, true
}

// Forget drops the cached profile at logout.
func (r *Reconciler) Forget(userID string) {
	r.mu.Lock()
	delete(r.users, userID)
	r.mu.Unlock()
}

// Reconcile folds the session result into the cached profile, then pushes the
// delta to the store. The optimistic profile is always installed first and is
// returned even when the sync fails, so gameplay never blocks on the network.
// Network failures queue the delta for retry; auth and validation failures
// surface typed and are not queued.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, result domain.SessionResult) (domain.UserProfile, error) {
	cache := r.cacheFor(userID)
	cache.mu.Lock()
	defer cache.mu.Unlock()

	old := cache.profile
	updated := ApplyResult(old, result, r.now())
	cache.profile = updated

	delta := ComputeDelta(old, updated)
	if delta.Zero() {
		return updated, nil
	}

	qd := queuedDelta{requestID: uuid.NewString(), delta: delta}

	// Older queued deltas go first so server-side counters stay ordered.
	if err := r.drainLocked(ctx, userID, cache); err != nil {
		cache.pending = append(cache.pending, qd)
		return cache.profile, err
	}

	authoritative, err := r.sendLocked(ctx, userID, cache, qd)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			cache.pending = append(cache.pending, qd)
		}
		return cache.profile, err
	}
	return authoritative, nil
}

// Flush retries any deltas that previously failed with a network error.
func (r *Reconciler) Flush(ctx context.Context, userID string) error {
	cache := r.cacheFor(userID)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return r.drainLocked(ctx, userID, cache)
}

// PendingDeltas reports how many deltas await retry for the user.
func (r *Reconciler) PendingDeltas(userID string) int {
	cache := r.cacheFor(userID)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return len(cache.pending)
}

func (r *Reconciler) drainLocked(ctx context.Context, userID string, cache *userCache) error {
	for len(cache.pending) > 0 {
		head := cache.pending[0]
		if _, err := r.sendLocked(ctx, userID, cache, head); err != nil {
			if errors.Is(err, domain.ErrStoreRejected) {
				// An invalid payload will never be accepted; drop it.
				cache.pending = cache.pending[1:]
				continue
			}
			return err
		}
		cache.pending = cache.pending[1:]
	}
	return nil
}

func (r *Reconciler) sendLocked(ctx context.Context, userID string, cache *userCache, qd queuedDelta) (domain.UserProfile, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	authoritative, err := r.store.ApplyDelta(callCtx, userID, qd.requestID, qd.delta)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrStoreUnauthorized), errors.Is(err, domain.ErrStoreRejected):
			// Not retryable with the same token/payload. Keep the optimistic
			// profile and let the caller decide what to do.
			log.Printf("profile sync rejected for user %s: %v", userID, err)
			return cache.profile, err
		default:
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				err = errors.Join(domain.ErrStoreUnavailable, err)
			}
			log.Printf("profile sync deferred for user %s: %v", userID, err)
			return cache.profile, err
		}
	}

	// Server view wins on counters, level, and xp. History is a client-side
	// presentation log the store does not track, so the local one is kept.
	authoritative.History = cache.profile.History
	cache.profile = authoritative
	return authoritative, nil
}

func (r *Reconciler) cacheFor(userID string) *userCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	cache, ok := r.users[userID]
	if !ok {
		cache = &userCache{}
		r.users[userID] = cache
	}
	return cache
}
