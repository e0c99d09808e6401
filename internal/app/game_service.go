// Package app contains the gameplay use cases: starting a session from the
// catalog, completing it into the user's profile, and abandoning it.
package app

import (
	"context"

	"mindquest-service/internal/domain"
	"mindquest-service/internal/profile"
	"mindquest-service/internal/session"
)

// CatalogRepository loads quiz content (from cache/backing store).
type CatalogRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// GameService contains the core quiz use cases.
type GameService struct {
	catalog  CatalogRepository
	profiles *profile.Reconciler
}

func NewGameService(catalog CatalogRepository, profiles *profile.Reconciler) *GameService {
	return &GameService{catalog: catalog, profiles: profiles}
}

// Catalog lists the quizzes available to play. Placeholder quizzes with no
// questions are included; they fail at session start, not here.
func (g *GameService) Catalog(ctx context.Context) ([]domain.Quiz, error) {
	return g.catalog.ListQuizzes(ctx)
}

// NewSession loads the quiz and starts a session on it.
func (g *GameService) NewSession(ctx context.Context, quizID string) (*session.Session, error) {
	quiz, err := g.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return session.Start(quiz)
}

// CompleteSession reconciles a finished session into the user's profile.
// Sessions that are not in the finished phase (still running, or aborted)
// reconcile nothing and report domain.ErrInvalidPhase.
func (g *GameService) CompleteSession(ctx context.Context, userID string, s *session.Session) (domain.SessionResult, domain.UserProfile, error) {
	result, ok := s.Result()
	if !ok {
		return domain.SessionResult{}, domain.UserProfile{}, domain.ErrInvalidPhase
	}
	updated, err := g.profiles.Reconcile(ctx, userID, result)
	return result, updated, err
}

// Profiles exposes the reconciler for seeding at login and cache reads.
func (g *GameService) Profiles() *profile.Reconciler {
	return g.profiles
}
