package domain

import "time"

// Question is a single multiple-choice question. Immutable once loaded;
// CorrectIndex must be a valid index into Options.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
	ImageURL     string   `json:"image,omitempty"`
}

// Quiz is an ordered collection of questions. A quiz with zero questions is a
// valid catalog entry ("not yet authored") but cannot be played.
type Quiz struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Category   string     `json:"category"`
	Difficulty string     `json:"difficulty"`
	Questions  []Question `json:"questions"`
}

// Playable reports whether the quiz has at least one question.
func (q Quiz) Playable() bool {
	return len(q.Questions) > 0
}

// TimedOutOption is the sentinel chosen index recorded when the per-question
// timer expires before an answer arrives.
const TimedOutOption = -1

// SessionAnswer records the outcome of one question within a session.
// Created exactly once per question and never mutated.
type SessionAnswer struct {
	QuestionID   string `json:"questionId"`
	ChosenIndex  int    `json:"chosenIndex"`
	CorrectIndex int    `json:"correctIndex"`
	Correct      bool   `json:"correct"`
}

// TimedOut reports whether the answer was recorded by timer expiry.
func (a SessionAnswer) TimedOut() bool {
	return a.ChosenIndex == TimedOutOption
}

// SessionResult is the immutable summary of a finished session.
type SessionResult struct {
	QuizID         string `json:"quizId"`
	QuizTitle      string `json:"quizTitle"`
	TotalQuestions int    `json:"totalQuestions"`
	CorrectAnswers int    `json:"correctAnswers"`
	Score          int    `json:"score"`
	XPAwarded      int    `json:"xpAwarded"`
}

// Stats holds cumulative gameplay counters for a user.
type Stats struct {
	QuizzesPlayed     int `json:"quizzesPlayed"`
	QuestionsAnswered int `json:"questionsAnswered"`
	CorrectAnswers    int `json:"correctAnswers"`
	Accuracy          int `json:"accuracy"` // percentage, 0 when nothing answered
}

// HistoryEntry is one past session as remembered on the profile,
// most-recent-first.
type HistoryEntry struct {
	QuizID   string    `json:"quizId"`
	Title    string    `json:"title"`
	Score    int       `json:"score"`
	XPEarned int       `json:"xpEarned"`
	PlayedAt time.Time `json:"playedAt"`
}

// UserProfile is the long-lived per-user record. The client side holds an
// optimistic copy; the profile store holds the authoritative one.
type UserProfile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Level       int            `json:"level"`
	XP          int            `json:"xp"`
	NextLevelXP int            `json:"nextLevelXp"`
	StreakDays  int            `json:"streakDays"`
	Stats       Stats          `json:"stats"`
	History     []HistoryEntry `json:"history"`
}

// StatDelta is the incremental change reported to the profile store. Fields
// are additive increments, omitted on the wire when zero.
type StatDelta struct {
	XP             int `json:"xp,omitempty"`
	Questions      int `json:"completedQuestions,omitempty"`
	CorrectAnswers int `json:"correctAnswers,omitempty"`
}

// Zero reports whether the delta carries no change worth sending.
func (d StatDelta) Zero() bool {
	return d.XP == 0 && d.Questions == 0 && d.CorrectAnswers == 0
}

// LeaderboardEntry is one row of the global XP ranking.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	XP     int    `json:"xp"`
}
