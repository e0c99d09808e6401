package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"mindquest-service/internal/account"
	"mindquest-service/internal/app"
	"mindquest-service/internal/domain"
)

type contextKey string

const userIDKey contextKey = "userID"

// API serves the account endpoints the SPA and remote game clients use.
type API struct {
	accounts *account.Service
	game     *app.GameService
}

func NewAPI(accounts *account.Service, game *app.GameService) *API {
	return &API{accounts: accounts, game: game}
}

// Router assembles the public REST surface.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Post("/user/signup", a.handleSignup)
	r.Post("/user/login", a.handleLogin)
	r.Get("/user/leaderboard", a.handleLeaderboard)
	r.Get("/quizzes", a.handleListQuizzes)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/user/me", a.handleMe)
		r.Put("/user/update-stats/{id}", a.handleUpdateStats)
	})

	return r
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateStatsRequest struct {
	RequestID string `json:"requestId"`
	domain.StatDelta
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := a.accounts.Signup(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "all fields are required")
	case err != nil:
		serverError(w, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"user": p})
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, p, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": p})
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	p, err := a.accounts.Profile(r.Context(), userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": p})
}

func (a *API) handleUpdateStats(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	if chi.URLParam(r, "id") != userID {
		writeError(w, http.StatusForbidden, "cannot update another user's stats")
		return
	}

	var req updateStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := a.accounts.ApplyDelta(r.Context(), userID, req.RequestID, req.StatDelta)
	switch {
	case errors.Is(err, domain.ErrStoreRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case err != nil:
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"user": p})
	}
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := a.accounts.Leaderboard(r.Context(), limit)
	if err != nil {
		serverError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (a *API) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := a.game.Catalog(r.Context())
	if err != nil {
		serverError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := a.accounts.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func serverError(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "server error")
}
