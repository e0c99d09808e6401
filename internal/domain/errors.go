package domain

import "errors"

var (
	// ErrEmptyQuiz is returned when a session is started from a quiz with no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrAlreadyAnswered is returned when an answer arrives outside the answering phase.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInvalidPhase is returned when a session operation is not valid for the current phase.
	ErrInvalidPhase = errors.New("operation not valid in current session phase")
	// ErrQuizNotFound indicates the requested quiz is not in the catalog.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUserNotFound indicates the profile store has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by login on a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStoreUnavailable marks a profile store call that failed for network
	// reasons (timeout, refused connection, 5xx). Safe to retry.
	ErrStoreUnavailable = errors.New("profile store unavailable")
	// ErrStoreUnauthorized marks a rejected bearer token. The caller must
	// re-authenticate before retrying.
	ErrStoreUnauthorized = errors.New("profile store rejected token")
	// ErrStoreRejected marks a delta the store refused as malformed. Retrying
	// the same payload cannot succeed.
	ErrStoreRejected = errors.New("profile store rejected delta")
)
