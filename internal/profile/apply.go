// Package profile folds finished session results into the cached user
// profile, derives the additive delta owed to the profile store, and merges
// authoritative replies back. Local state is updated optimistically; the
// store's reply always wins on a successful sync.
package profile

import (
	"math"
	"time"

	"mindquest-service/internal/domain"
)

// NextLevelGrowth scales the XP requirement each time a level is gained.
const NextLevelGrowth = 1.2

// ApplyResult returns a new profile with the session result folded in.
// The input profile is never mutated, so callers can keep the old snapshot
// for delta computation and rollback-free optimistic updates.
func ApplyResult(p domain.UserProfile, result domain.SessionResult, playedAt time.Time) domain.UserProfile {
	next := p

	next.XP = p.XP + result.XPAwarded
	if next.XP >= p.NextLevelXP {
		next.Level = p.Level + 1
		next.NextLevelXP = GrowLevelRequirement(p.NextLevelXP)
	}

	next.Stats.QuizzesPlayed = p.Stats.QuizzesPlayed + 1
	next.Stats.QuestionsAnswered = p.Stats.QuestionsAnswered + result.TotalQuestions
	next.Stats.CorrectAnswers = p.Stats.CorrectAnswers + result.CorrectAnswers
	next.Stats.Accuracy = AccuracyPercent(next.Stats.CorrectAnswers, next.Stats.QuestionsAnswered)

	history := make([]domain.HistoryEntry, 0, len(p.History)+1)
	history = append(history, domain.HistoryEntry{
		QuizID:   result.QuizID,
		Title:    result.QuizTitle,
		Score:    result.Score,
		XPEarned: result.XPAwarded,
		PlayedAt: playedAt,
	})
	history = append(history, p.History...)
	next.History = history

	return next
}

// ComputeDelta returns the non-negative increments between two profile
// snapshots. Deltas always come from running-total comparison, never from
// history entries; a stale or corrupt cache can only produce a negative
// difference, which clamps to zero rather than shipping a bogus decrement.
func ComputeDelta(old, updated domain.UserProfile) domain.StatDelta {
	return domain.StatDelta{
		XP:             nonNegative(updated.XP - old.XP),
		Questions:      nonNegative(updated.Stats.QuestionsAnswered - old.Stats.QuestionsAnswered),
		CorrectAnswers: nonNegative(updated.Stats.CorrectAnswers - old.Stats.CorrectAnswers),
	}
}

// MergeCounters applies a delta's increments to a profile the way the store
// does: one completed session per delta, accuracy recomputed, level curve
// advanced while XP crosses thresholds. Shared by the store implementations.
func MergeCounters(p domain.UserProfile, delta domain.StatDelta) domain.UserProfile {
	p.XP += delta.XP
	p.Stats.QuizzesPlayed++
	p.Stats.QuestionsAnswered += delta.Questions
	p.Stats.CorrectAnswers += delta.CorrectAnswers
	p.Stats.Accuracy = AccuracyPercent(p.Stats.CorrectAnswers, p.Stats.QuestionsAnswered)
	for p.NextLevelXP > 0 && p.XP >= p.NextLevelXP {
		p.Level++
		p.NextLevelXP = GrowLevelRequirement(p.NextLevelXP)
	}
	return p
}

// GrowLevelRequirement applies the per-level XP curve.
func GrowLevelRequirement(nextLevelXP int) int {
	return int(math.Round(float64(nextLevelXP) * NextLevelGrowth))
}

// AccuracyPercent computes the rounded percentage, defined as 0 when nothing
// has been answered.
func AccuracyPercent(correct, answered int) int {
	if answered == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(answered)))
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
