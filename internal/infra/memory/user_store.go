package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"mindquest-service/internal/domain"
	"mindquest-service/internal/profile"
)

// UserStore is an in-memory implementation of account.UserStore, used when no
// Postgres URL is configured and throughout the unit tests.
type UserStore struct {
	mu       sync.RWMutex
	users    map[string]*storedUser
	byEmail  map[string]string
	requests map[string]bool
}

type storedUser struct {
	profile      domain.UserProfile
	email        string
	passwordHash string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[string]*storedUser),
		byEmail:  make(map[string]string),
		requests: make(map[string]bool),
	}
}

func (s *UserStore) Create(_ context.Context, p domain.UserProfile, email, passwordHash string) error {
	email = normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	s.users[p.ID] = &storedUser{profile: p, email: email, passwordHash: passwordHash}
	s.byEmail[email] = p.ID
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (domain.UserProfile, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return domain.UserProfile{}, "", domain.ErrUserNotFound
	}
	u := s.users[id]
	return u.profile, u.passwordHash, nil
}

func (s *UserStore) Get(_ context.Context, userID string) (domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	return u.profile, nil
}

func (s *UserStore) ApplyDelta(_ context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	if s.requests[requestID] {
		return u.profile, nil
	}
	s.requests[requestID] = true
	u.profile = profile.MergeCounters(u.profile, delta)
	return u.profile, nil
}

func (s *UserStore) TopByXP(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.users))
	for _, u := range s.users {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: u.profile.ID,
			Name:   u.profile.Name,
			XP:     u.profile.XP,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
