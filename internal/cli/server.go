package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logger"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// storage is the set of adapters chosen by configuration.
type storage struct {
	attempts  app.AttemptRepository
	responses app.ResponseRepository
	questions app.QuestionRepository
	tx        app.Transactor
	loader    memory.QuizLoader
	closers   []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.QuizCatalog
	var locker app.Locker
	if redisClient != nil {
		redisTTL := config.TTLDuration(cfg.Redis.TTL, quizTTL)
		catalog = infraredis.NewQuizRepository(redisClient, store.loader, redisTTL, log)
		locker = infraredis.NewLocker(redisClient, config.TTLDuration(cfg.Redis.LockTTL, 5*time.Second), log)
	} else {
		catalog = memory.NewQuizRepository(store.loader, quizTTL)
		locker = memory.NewLocker()
	}

	rule, err := app.ParseShortAnswerRule(cfg.Scoring.ShortAnswer)
	if err != nil {
		return err
	}
	opts := []app.Option{app.WithLogger(log), app.WithMaxRetries(cfg.Attempts.MaxRetries)}
	attempts := app.NewAttemptService(store.attempts, catalog, locker, opts...)
	handler := transport.NewHandler(transport.Services{
		Attempts:    attempts,
		Submissions: app.NewSubmissionService(attempts, store.attempts, store.responses, catalog, app.NewScorer(rule), store.tx, opts...),
		Questions:   app.NewQuestionService(store.questions, catalog, locker, opts...),
		Catalog:     catalog,
	}, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting attempt service",
			zap.String("addr", server.Addr),
			zap.Bool("postgres", cfg.Postgres.URL != ""),
			zap.Bool("redis", redisClient != nil),
			zap.String("shortAnswerRule", string(rule)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStorage wires Postgres when configured, otherwise an in-process store seeded with
// a sample quiz.
func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Postgres.URL == "" {
		mem := memory.NewStore()
		mem.PutQuiz(sampleQuiz())
		log.Warn("postgres not configured, using in-memory storage")
		return &storage{attempts: mem, responses: mem, questions: mem, tx: mem, loader: mem}, nil
	}

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	db := postgres.Open(cfg.Postgres.URL)
	pg := postgres.NewStore(db)
	return &storage{
		attempts:  pg,
		responses: pg,
		questions: pg,
		tx:        pg,
		loader:    postgres.NewQuizLoader(pool),
		closers:   []func(){pool.Close, func() { _ = db.Close() }},
	}, nil
}

// sampleQuiz provides a minimal quiz for running without a database.
func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Warm-up",
		AttemptsAllowed: 3,
		TimeLimit:       10 * time.Minute,
		Questions: []domain.QuizQuestion{
			{
				ID:      "q1",
				Type:    domain.MCQSingle,
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4", "5"},
				Key:     domain.SingleChoiceKey{Choice: "4"},
				Points:  decimal.NewFromInt(1),
			},
			{
				ID:      "q2",
				Type:    domain.MCQMultiple,
				Prompt:  "Which are prime?",
				Options: []string{"2", "4", "7"},
				Key:     domain.MultipleChoiceKey{Choices: domain.NewChoiceSet("2", "7")},
				Points:  decimal.NewFromInt(2),
			},
			{
				ID:     "q3",
				Type:   domain.ShortAnswer,
				Prompt: "Name the largest planet.",
				Key:    domain.ShortAnswerKey{Text: "Jupiter"},
				Points: decimal.NewFromInt(1),
			},
		},
	}
}
