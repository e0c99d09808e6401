package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mindquest-service/internal/domain"
	"mindquest-service/internal/profile"
)

const uniqueViolation = "23505"

// UserStore is the Postgres implementation of account.UserStore. Stat merges
// run in a transaction: the request id is claimed first, then the row is
// locked, recomputed, and written back, so concurrent deltas from several
// devices serialize without losing updates.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, p domain.UserProfile, email, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, level, xp, next_level_xp, streak_days,
			quizzes_played, questions_answered, correct_answers, accuracy)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, email, passwordHash, p.Level, p.XP, p.NextLevelXP, p.StreakDays,
		p.Stats.QuizzesPlayed, p.Stats.QuestionsAnswered, p.Stats.CorrectAnswers, p.Stats.Accuracy,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.UserProfile, string, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE email = lower($1)`, email)
	p, hash, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, "", domain.ErrUserNotFound
	}
	if err != nil {
		return domain.UserProfile{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return p, hash, nil
}

func (s *UserStore) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	row := s.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, userID)
	p, _, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProfile{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get user: %w", err)
	}
	return p, nil
}

func (s *UserStore) ApplyDelta(ctx context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error) {
	var out domain.UserProfile
	err := s.pool.BeginTxFunc(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Lock the row before claiming the request id so an unknown user
		// surfaces typed instead of as a foreign key violation.
		row := tx.QueryRow(ctx, selectUser+` WHERE id = $1 FOR UPDATE`, userID)
		p, _, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO stat_requests (request_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			requestID, userID,
		)
		if err != nil {
			return fmt.Errorf("claim request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Request already applied; return the current view untouched.
			out = p
			return nil
		}

		p = profile.MergeCounters(p, delta)
		_, err = tx.Exec(ctx, `
			UPDATE users SET level=$2, xp=$3, next_level_xp=$4,
				quizzes_played=$5, questions_answered=$6, correct_answers=$7, accuracy=$8
			WHERE id=$1`,
			p.ID, p.Level, p.XP, p.NextLevelXP,
			p.Stats.QuizzesPlayed, p.Stats.QuestionsAnswered, p.Stats.CorrectAnswers, p.Stats.Accuracy,
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	return out, nil
}

func (s *UserStore) TopByXP(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, xp FROM users ORDER BY xp DESC, name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top by xp: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.XP); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const selectUser = `
	SELECT id, name, password_hash, level, xp, next_level_xp, streak_days,
		quizzes_played, questions_answered, correct_answers, accuracy
	FROM users`

func scanUser(row pgx.Row) (domain.UserProfile, string, error) {
	var p domain.UserProfile
	var hash string
	err := row.Scan(&p.ID, &p.Name, &hash, &p.Level, &p.XP, &p.NextLevelXP, &p.StreakDays,
		&p.Stats.QuizzesPlayed, &p.Stats.QuestionsAnswered, &p.Stats.CorrectAnswers, &p.Stats.Accuracy)
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	return p, hash, nil
}
