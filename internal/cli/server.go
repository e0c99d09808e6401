package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mindquest-service/internal/account"
	"mindquest-service/internal/app"
	"mindquest-service/internal/config"
	"mindquest-service/internal/domain"
	"mindquest-service/internal/infra/memory"
	pginfra "mindquest-service/internal/infra/postgres"
	redisinfra "mindquest-service/internal/infra/redis"
	"mindquest-service/internal/profile"
	transport "mindquest-service/internal/transport/http"
	"mindquest-service/internal/userclient"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var users account.UserStore = memory.NewUserStore()
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
		users = pginfra.NewUserStore(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	var board account.Leaderboard
	if redisClient != nil {
		catalog = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
		board = redisinfra.NewLeaderboard(redisClient)
	} else {
		catalog = memory.NewQuizRepository(loader, quizTTL)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		log.Printf("warning: no jwt secret configured, using an insecure default")
		secret = "dev-secret"
	}
	tokenTTL := config.Duration(cfg.Auth.TokenTTL, account.DefaultTokenTTL)
	accounts := account.NewService(users, board, []byte(secret), tokenTTL)

	// Stats reconcile against the embedded account service unless a remote
	// profile store is configured.
	var store profile.Store = accounts
	if cfg.Store.URL != "" {
		remote := userclient.New(cfg.Store.URL, nil)
		remote.SetToken(os.Getenv("STORE_TOKEN"))
		store = remote
	}
	storeTimeout := config.Duration(cfg.Store.Timeout, profile.DefaultStoreTimeout)
	reconciler := profile.NewReconciler(store, profile.WithStoreTimeout(storeTimeout))

	game := app.NewGameService(catalog, reconciler)
	wsHandler := transport.NewWSHandler(game, accounts)
	api := transport.NewAPI(accounts, game)

	router := api.Router()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Get("/ws/play", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting mindquest service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the catalog when no Postgres URL is configured. The
// empty "coming soon" entry is intentional: placeholder quizzes are valid
// catalog rows that only fail at session start.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"gk-masterclass": {
			ID:         "gk-masterclass",
			Title:      "General Knowledge Masterclass",
			Category:   "General Knowledge",
			Difficulty: "Medium",
			Questions: []domain.Question{
				{
					ID:           "gk-1",
					Text:         "Which planet is known as the Red Planet?",
					Options:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
					CorrectIndex: 1,
					Explanation:  "Iron oxide on its surface gives Mars its reddish color.",
				},
				{
					ID:           "gk-2",
					Text:         "What is the largest ocean on Earth?",
					Options:      []string{"Atlantic", "Indian", "Pacific", "Arctic"},
					CorrectIndex: 2,
					Explanation:  "The Pacific covers about a third of the planet's surface.",
				},
				{
					ID:           "gk-3",
					Text:         "How many continents are there?",
					Options:      []string{"Five", "Six", "Seven", "Eight"},
					CorrectIndex: 2,
					Explanation:  "Seven, by the most common convention.",
				},
			},
		},
		"science-challenge-1": {
			ID:         "science-challenge-1",
			Title:      "Science Challenge 1",
			Category:   "Science",
			Difficulty: "Easy",
			Questions: []domain.Question{
				{
					ID:           "sci-1",
					Text:         "What is the chemical symbol for water?",
					Options:      []string{"H2O", "CO2", "NaCl", "O2"},
					CorrectIndex: 0,
					Explanation:  "Two hydrogen atoms bonded to one oxygen atom.",
				},
				{
					ID:           "sci-2",
					Text:         "What force keeps planets in orbit around the Sun?",
					Options:      []string{"Magnetism", "Friction", "Gravity", "Inertia"},
					CorrectIndex: 2,
					Explanation:  "Gravity pulls each planet toward the Sun continuously.",
				},
			},
		},
		"history-challenge-1": {
			ID:         "history-challenge-1",
			Title:      "History Challenge 1",
			Category:   "History",
			Difficulty: "Hard",
			Questions: []domain.Question{
				{
					ID:           "his-1",
					Text:         "In which year did the Berlin Wall fall?",
					Options:      []string{"1987", "1989", "1991", "1993"},
					CorrectIndex: 1,
					Explanation:  "The wall came down in November 1989.",
				},
			},
		},
		"movies-hero": {
			ID:         "movies-hero",
			Title:      "Movies Masterclass",
			Category:   "Movies",
			Difficulty: "Medium",
			// Not yet authored.
		},
	}
}
