// Package session drives a single quiz attempt from first question to
// completion or abort. The engine performs no timing of its own: an external
// ticker calls Tick once per second, so tests can step the clock
// synchronously. A Session is not safe for concurrent use; the connection
// loop that owns it must serialize Tick against the mutating operations.
package session

import (
	"mindquest-service/internal/domain"
)

const (
	// QuestionTimeLimit is the per-question countdown in seconds.
	QuestionTimeLimit = 20
	// BaseScore is awarded for every correct answer before bonuses.
	BaseScore = 100
	// StreakBonusPerStep is added per consecutive correct answer held going
	// into the question.
	StreakBonusPerStep = 10
	// XPPerScorePoint converts a final score into awarded XP.
	XPPerScorePoint = 10
)

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseAwaitingAnswer Phase = "awaiting-answer"
	PhaseFeedback       Phase = "feedback"
	PhaseFinished       Phase = "finished"
	PhaseAborted        Phase = "aborted"
)

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseAborted
}

// Session holds the transient state of one quiz attempt.
type Session struct {
	quiz     domain.Quiz
	index    int
	answers  []domain.SessionAnswer
	score    int
	streak   int
	timeLeft int
	phase    Phase
	result   *domain.SessionResult
}

// State is a read-only snapshot handed to the presentation layer.
type State struct {
	QuizID         string                 `json:"quizId"`
	QuizTitle      string                 `json:"quizTitle"`
	Category       string                 `json:"category"`
	QuestionIndex  int                    `json:"questionIndex"`
	TotalQuestions int                    `json:"totalQuestions"`
	Question       domain.Question        `json:"question"`
	Answers        []domain.SessionAnswer `json:"answers"`
	Score          int                    `json:"score"`
	Streak         int                    `json:"streak"`
	TimeRemaining  int                    `json:"timeRemaining"`
	Phase          Phase                  `json:"phase"`
}

// Start validates the quiz and begins a session on its first question.
func Start(quiz domain.Quiz) (*Session, error) {
	if !quiz.Playable() {
		return nil, domain.ErrEmptyQuiz
	}
	return &Session{
		quiz:     quiz,
		answers:  make([]domain.SessionAnswer, 0, len(quiz.Questions)),
		timeLeft: QuestionTimeLimit,
		phase:    PhaseAwaitingAnswer,
	}, nil
}

// Tick advances the countdown by one second. When the timer hits zero with no
// answer recorded, the engine submits the timeout sentinel itself. Ticks
// outside the answering phase are ignored.
func (s *Session) Tick() {
	if s.phase != PhaseAwaitingAnswer {
		return
	}
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft == 0 {
		_ = s.Submit(domain.TimedOutOption)
	}
}

// Submit locks in an answer for the current question and scores it.
// Outside the answering phase it changes nothing and reports
// domain.ErrAlreadyAnswered.
func (s *Session) Submit(optionIndex int) error {
	if s.phase != PhaseAwaitingAnswer {
		return domain.ErrAlreadyAnswered
	}

	question := s.quiz.Questions[s.index]
	correct := optionIndex == question.CorrectIndex

	s.answers = append(s.answers, domain.SessionAnswer{
		QuestionID:   question.ID,
		ChosenIndex:  optionIndex,
		CorrectIndex: question.CorrectIndex,
		Correct:      correct,
	})

	if correct {
		timeBonus := s.timeLeft / 2
		streakBonus := s.streak * StreakBonusPerStep
		s.score += BaseScore + timeBonus + streakBonus
		s.streak++
	} else {
		s.streak = 0
	}

	s.phase = PhaseFeedback
	return nil
}

// Advance moves past the feedback phase: to the next question, or to the
// finished state when the quiz is exhausted.
func (s *Session) Advance() error {
	if s.phase != PhaseFeedback {
		return domain.ErrInvalidPhase
	}
	if s.index+1 < len(s.quiz.Questions) {
		s.index++
		s.timeLeft = QuestionTimeLimit
		s.phase = PhaseAwaitingAnswer
		return nil
	}

	correct := 0
	for _, a := range s.answers {
		if a.Correct {
			correct++
		}
	}
	s.result = &domain.SessionResult{
		QuizID:         s.quiz.ID,
		QuizTitle:      s.quiz.Title,
		TotalQuestions: len(s.quiz.Questions),
		CorrectAnswers: correct,
		Score:          s.score,
		XPAwarded:      s.score * XPPerScorePoint,
	}
	s.phase = PhaseFinished
	return nil
}

// Quit abandons the session from any non-terminal phase. An aborted session
// produces no result and awards nothing.
func (s *Session) Quit() error {
	if s.phase.Terminal() {
		return domain.ErrInvalidPhase
	}
	s.phase = PhaseAborted
	return nil
}

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase {
	return s.phase
}

// Result returns the finished session summary. The second return is false
// until Advance transitions the session to the finished phase.
func (s *Session) Result() (domain.SessionResult, bool) {
	if s.result == nil {
		return domain.SessionResult{}, false
	}
	return *s.result, true
}

// Snapshot exports the current state for rendering.
func (s *Session) Snapshot() State {
	answers := make([]domain.SessionAnswer, len(s.answers))
	copy(answers, s.answers)
	return State{
		QuizID:         s.quiz.ID,
		QuizTitle:      s.quiz.Title,
		Category:       s.quiz.Category,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.quiz.Questions),
		Question:       s.quiz.Questions[s.index],
		Answers:        answers,
		Score:          s.score,
		Streak:         s.streak,
		TimeRemaining:  s.timeLeft,
		Phase:          s.phase,
	}
}
