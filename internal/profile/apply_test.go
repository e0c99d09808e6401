package profile

import (
	"reflect"
	"testing"
	"time"

	"mindquest-service/internal/domain"
)

func TestApplyResultIsPure(t *testing.T) {
	before := baseProfile()
	snapshot := baseProfile()
	result := sampleResult()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := ApplyResult(before, result, at)
	second := ApplyResult(before, result, at)

	if !reflect.DeepEqual(before, snapshot) {
		t.Fatalf("input profile mutated: %+v", before)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("apply is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestApplyResultAccumulatesStats(t *testing.T) {
	p := baseProfile()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	updated := ApplyResult(p, sampleResult(), at)

	if updated.XP != p.XP+2220 {
		t.Fatalf("expected xp %d, got %d", p.XP+2220, updated.XP)
	}
	if updated.Stats.QuizzesPlayed != 43 || updated.Stats.QuestionsAnswered != 353 || updated.Stats.CorrectAnswers != 275 {
		t.Fatalf("stats not accumulated: %+v", updated.Stats)
	}
	// 275 of 353 rounds to 78%.
	if updated.Stats.Accuracy != 78 {
		t.Fatalf("expected accuracy 78, got %d", updated.Stats.Accuracy)
	}
	if len(updated.History) != len(p.History)+1 {
		t.Fatalf("expected history to grow by one, got %d", len(updated.History))
	}
	head := updated.History[0]
	if head.QuizID != "quiz-1" || head.XPEarned != 2220 || !head.PlayedAt.Equal(at) {
		t.Fatalf("newest entry must be first, got %+v", head)
	}
}

func TestApplyResultLevelsUp(t *testing.T) {
	p := baseProfile()
	p.XP = 2900
	p.NextLevelXP = 3000

	updated := ApplyResult(p, sampleResult(), time.Now())

	if updated.Level != p.Level+1 {
		t.Fatalf("expected level up to %d, got %d", p.Level+1, updated.Level)
	}
	if updated.NextLevelXP != 3600 {
		t.Fatalf("expected next threshold 3600, got %d", updated.NextLevelXP)
	}
}

func TestApplyResultWithoutLevelUpKeepsCurve(t *testing.T) {
	p := baseProfile()
	updated := ApplyResult(p, domain.SessionResult{QuizID: "q", TotalQuestions: 1, XPAwarded: 10}, time.Now())
	if updated.Level != p.Level || updated.NextLevelXP != p.NextLevelXP {
		t.Fatalf("unexpected level change: %+v", updated)
	}
}

func TestAccuracyZeroWhenNothingAnswered(t *testing.T) {
	if got := AccuracyPercent(0, 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestComputeDeltaMatchesSessionResult(t *testing.T) {
	p := baseProfile()
	result := sampleResult()

	updated := ApplyResult(p, result, time.Now())
	delta := ComputeDelta(p, updated)

	if delta.XP != result.XPAwarded {
		t.Fatalf("xp delta %d, want %d", delta.XP, result.XPAwarded)
	}
	if delta.Questions != result.TotalQuestions {
		t.Fatalf("questions delta %d, want %d", delta.Questions, result.TotalQuestions)
	}
	if delta.CorrectAnswers != result.CorrectAnswers {
		t.Fatalf("correct delta %d, want %d", delta.CorrectAnswers, result.CorrectAnswers)
	}
}

func TestComputeDeltaClampsNegatives(t *testing.T) {
	ahead := baseProfile()
	behind := baseProfile()
	behind.XP = ahead.XP - 500
	behind.Stats.QuestionsAnswered = ahead.Stats.QuestionsAnswered - 3

	delta := ComputeDelta(ahead, behind)
	if !delta.Zero() {
		t.Fatalf("expected clamped zero delta, got %+v", delta)
	}
}

func TestMergeCountersAdvancesLevelCurve(t *testing.T) {
	p := domain.UserProfile{ID: "u1", Name: "Alex", Level: 1, NextLevelXP: 100}

	merged := MergeCounters(p, domain.StatDelta{XP: 250, Questions: 4, CorrectAnswers: 3})

	if merged.XP != 250 || merged.Stats.QuizzesPlayed != 1 {
		t.Fatalf("counters not merged: %+v", merged)
	}
	if merged.Stats.Accuracy != 75 {
		t.Fatalf("expected accuracy 75, got %d", merged.Stats.Accuracy)
	}
	// 250 XP crosses the 100 and 120 thresholds and stops at 144.
	if merged.Level != 3 || merged.NextLevelXP != 144 {
		t.Fatalf("level curve wrong: level=%d next=%d", merged.Level, merged.NextLevelXP)
	}
}

func TestMergeCountersToleratesBrokenCurve(t *testing.T) {
	p := domain.UserProfile{ID: "u1", Name: "Alex", Level: 1}

	merged := MergeCounters(p, domain.StatDelta{XP: 500})
	if merged.XP != 500 || merged.Level != 1 {
		t.Fatalf("zero next-level threshold must not level or loop: %+v", merged)
	}
}

func baseProfile() domain.UserProfile {
	return domain.UserProfile{
		ID:          "u1",
		Name:        "Alex",
		Level:       12,
		XP:          2450,
		NextLevelXP: 3000,
		StreakDays:  5,
		Stats: domain.Stats{
			QuizzesPlayed:     42,
			QuestionsAnswered: 350,
			CorrectAnswers:    273,
			Accuracy:          78,
		},
		History: []domain.HistoryEntry{
			{QuizID: "basic-math", Title: "Basic Math", Score: 800, XPEarned: 8000},
		},
	}
}

func sampleResult() domain.SessionResult {
	return domain.SessionResult{
		QuizID:         "quiz-1",
		QuizTitle:      "General Knowledge Masterclass",
		TotalQuestions: 3,
		CorrectAnswers: 2,
		Score:          222,
		XPAwarded:      2220,
	}
}
