package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindquest-service/internal/domain"
)

func TestReconcileReplacesCacheWithAuthoritativeReply(t *testing.T) {
	// Server is ahead by a sync from another device.
	server := newFakeStore(baseProfile())
	extra := server.profile
	extra.XP += 999
	server.profile = extra

	r := newTestReconciler(server)
	r.Seed(baseProfile())

	got, err := r.Reconcile(context.Background(), "u1", sampleResult())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got.XP != extra.XP+2220 {
		t.Fatalf("expected server view to win (xp=%d), got %d", extra.XP+2220, got.XP)
	}
	if len(server.applied) != 1 {
		t.Fatalf("expected one delta applied, got %d", len(server.applied))
	}
	if d := server.applied[0].delta; d.XP != 2220 || d.Questions != 3 || d.CorrectAnswers != 2 {
		t.Fatalf("unexpected delta %+v", d)
	}
	// History is client-owned and must survive the replacement.
	if len(got.History) != 2 {
		t.Fatalf("expected local history kept, got %d entries", len(got.History))
	}
}

func TestReconcileKeepsOptimisticProfileOnNetworkFailure(t *testing.T) {
	server := newFakeStore(baseProfile())
	server.fail = domain.ErrStoreUnavailable
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	got, err := r.Reconcile(context.Background(), "u1", sampleResult())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got.XP != baseProfile().XP+2220 {
		t.Fatalf("optimistic update lost: xp=%d", got.XP)
	}
	if r.PendingDeltas("u1") != 1 {
		t.Fatalf("expected delta queued for retry, got %d", r.PendingDeltas("u1"))
	}
}

func TestFlushRetriesQueuedDeltasWithSameRequestID(t *testing.T) {
	server := newFakeStore(baseProfile())
	server.fail = domain.ErrStoreUnavailable
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	if _, err := r.Reconcile(context.Background(), "u1", sampleResult()); err == nil {
		t.Fatalf("expected network failure")
	}

	server.fail = nil
	if err := r.Flush(context.Background(), "u1"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if r.PendingDeltas("u1") != 0 {
		t.Fatalf("expected queue drained, %d left", r.PendingDeltas("u1"))
	}
	if len(server.applied) != 1 {
		t.Fatalf("expected exactly one applied delta, got %d", len(server.applied))
	}
	if server.applied[0].requestID == "" {
		t.Fatalf("expected request id to travel with the retried delta")
	}
}

func TestQueuedDeltasDrainBeforeNewOnes(t *testing.T) {
	server := newFakeStore(baseProfile())
	server.fail = domain.ErrStoreUnavailable
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	first := sampleResult()
	if _, err := r.Reconcile(context.Background(), "u1", first); err == nil {
		t.Fatalf("expected failure for first result")
	}

	server.fail = nil
	second := sampleResult()
	second.Score = 100
	second.XPAwarded = 1000
	if _, err := r.Reconcile(context.Background(), "u1", second); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if len(server.applied) != 2 {
		t.Fatalf("expected both deltas applied, got %d", len(server.applied))
	}
	if server.applied[0].delta.XP != 2220 || server.applied[1].delta.XP != 1000 {
		t.Fatalf("deltas applied out of order: %+v", server.applied)
	}
}

func TestAuthFailureSurfacesWithoutQueueing(t *testing.T) {
	server := newFakeStore(baseProfile())
	server.fail = domain.ErrStoreUnauthorized
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	_, err := r.Reconcile(context.Background(), "u1", sampleResult())
	if !errors.Is(err, domain.ErrStoreUnauthorized) {
		t.Fatalf("expected ErrStoreUnauthorized, got %v", err)
	}
	if r.PendingDeltas("u1") != 0 {
		t.Fatalf("auth failures must not queue, got %d pending", r.PendingDeltas("u1"))
	}
}

func TestRejectedDeltaIsNotRetried(t *testing.T) {
	server := newFakeStore(baseProfile())
	server.fail = domain.ErrStoreRejected
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	_, err := r.Reconcile(context.Background(), "u1", sampleResult())
	if !errors.Is(err, domain.ErrStoreRejected) {
		t.Fatalf("expected ErrStoreRejected, got %v", err)
	}
	if r.PendingDeltas("u1") != 0 {
		t.Fatalf("rejected payloads must not be queued")
	}
}

func TestStoreDeduplicatesRetriedRequest(t *testing.T) {
	server := newFakeStore(baseProfile())
	r := newTestReconciler(server)
	r.Seed(baseProfile())

	if _, err := r.Reconcile(context.Background(), "u1", sampleResult()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	req := server.applied[0]

	// Replaying the exact request must not double-count.
	before := server.profile.XP
	if _, err := server.ApplyDelta(context.Background(), "u1", req.requestID, req.delta); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if server.profile.XP != before {
		t.Fatalf("replayed request id double-counted: %d -> %d", before, server.profile.XP)
	}
}

func newTestReconciler(store Store) *Reconciler {
	return NewReconciler(store,
		WithStoreTimeout(time.Second),
		withClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
}

type appliedDelta struct {
	requestID string
	delta     domain.StatDelta
}

// fakeStore mimics the profile store's additive merge and request-id de-dup.
type fakeStore struct {
	profile domain.UserProfile
	seen    map[string]bool
	applied []appliedDelta
	fail    error
}

func newFakeStore(p domain.UserProfile) *fakeStore {
	p.History = nil // the server does not track history
	return &fakeStore{profile: p, seen: make(map[string]bool)}
}

func (f *fakeStore) ApplyDelta(_ context.Context, _, requestID string, delta domain.StatDelta) (domain.UserProfile, error) {
	if f.fail != nil {
		return domain.UserProfile{}, f.fail
	}
	if f.seen[requestID] {
		return f.profile, nil
	}
	f.seen[requestID] = true
	f.applied = append(f.applied, appliedDelta{requestID: requestID, delta: delta})

	f.profile.XP += delta.XP
	f.profile.Stats.QuizzesPlayed++
	f.profile.Stats.QuestionsAnswered += delta.Questions
	f.profile.Stats.CorrectAnswers += delta.CorrectAnswers
	f.profile.Stats.Accuracy = AccuracyPercent(f.profile.Stats.CorrectAnswers, f.profile.Stats.QuestionsAnswered)
	for f.profile.XP >= f.profile.NextLevelXP {
		f.profile.Level++
		f.profile.NextLevelXP = GrowLevelRequirement(f.profile.NextLevelXP)
	}
	return f.profile, nil
}
