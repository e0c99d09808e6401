// Package account implements the profile store and identity provider: signup
// and login, bearer token issuance, atomic additive stat merges with
// request-id de-duplication, and the XP leaderboard.
package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mindquest-service/internal/domain"
)

const (
	// StartingNextLevelXP is the XP required to leave level 1.
	StartingNextLevelXP = 100
	// DefaultTokenTTL matches the week-long sessions the web client expects.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// UserStore persists profiles and credentials.
type UserStore interface {
	Create(ctx context.Context, p domain.UserProfile, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (domain.UserProfile, string, error)
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
	// ApplyDelta merges the increments atomically. A request id that was
	// already applied is a no-op returning the current profile.
	ApplyDelta(ctx context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error)
	TopByXP(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Leaderboard is an optional ranking index kept beside the store (Redis
// sorted set in production). The store itself remains the source of truth.
type Leaderboard interface {
	Record(ctx context.Context, userID, name string, xp int) error
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Service wires the store, the ranking index, and token handling.
type Service struct {
	store    UserStore
	board    Leaderboard
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(store UserStore, board Leaderboard, secret []byte, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:    store,
		board:    board,
		secret:   secret,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// NewProfile is the fresh-signup profile shape.
func NewProfile(id, name string) domain.UserProfile {
	return domain.UserProfile{
		ID:          id,
		Name:        name,
		Level:       1,
		NextLevelXP: StartingNextLevelXP,
	}
}

// Signup registers a user and returns the initial profile.
func (s *Service) Signup(ctx context.Context, name, email, password string) (domain.UserProfile, error) {
	if name == "" || email == "" || password == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: all fields are required", domain.ErrInvalidCredentials)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	p := NewProfile(uuid.NewString(), name)
	if err := s.store.Create(ctx, p, email, string(hash)); err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

// Login exchanges credentials for an opaque bearer token and the profile.
func (s *Service) Login(ctx context.Context, email, password string) (string, domain.UserProfile, error) {
	p, hash, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.UserProfile{}, domain.ErrInvalidCredentials
		}
		return "", domain.UserProfile{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", domain.UserProfile{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   p.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", domain.UserProfile{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, p, nil
}

// VerifyToken returns the user id a bearer token was issued for.
func (s *Service) VerifyToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrStoreUnauthorized
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrStoreUnauthorized
	}
	return claims.Subject, nil
}

// Profile fetches the authoritative profile.
func (s *Service) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	return s.store.Get(ctx, userID)
}

// ApplyDelta validates and merges a stat delta, then refreshes the ranking
// index. Satisfies profile.Store so a co-located reconciler can sync without
// a network hop.
func (s *Service) ApplyDelta(ctx context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error) {
	if delta.XP < 0 || delta.Questions < 0 || delta.CorrectAnswers < 0 {
		return domain.UserProfile{}, fmt.Errorf("%w: negative increments", domain.ErrStoreRejected)
	}
	if requestID == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: missing request id", domain.ErrStoreRejected)
	}

	p, err := s.store.ApplyDelta(ctx, userID, requestID, delta)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if s.board != nil {
		// Ranking refresh is best effort; the store already holds the truth.
		if err := s.board.Record(ctx, p.ID, p.Name, p.XP); err != nil {
			log.Printf("leaderboard update failed for user %s: %v", p.ID, err)
		}
	}
	return p, nil
}

// Leaderboard returns the top users by XP, preferring the ranking index.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.board != nil {
		entries, err := s.board.Top(ctx, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			log.Printf("leaderboard index unavailable, falling back to store: %v", err)
		}
	}
	return s.store.TopByXP(ctx, limit)
}
