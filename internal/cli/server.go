package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/config"
	"battle-room-service/internal/domain"
	"battle-room-service/internal/infra/memory"
	pgcatalog "battle-room-service/internal/infra/postgres"
	redisinfra "battle-room-service/internal/infra/redis"
	transport "battle-room-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port, sweepInterval *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle room coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, *sweepInterval)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag, sweepFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleCatalog())
	if pool != nil {
		loader = pgcatalog.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = redisinfra.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var rooms app.RoomRepository
	var ledger app.LedgerService
	if redisClient != nil {
		rooms = redisinfra.NewRoomStore(redisClient, redisTTL)
		ledger = redisinfra.NewLedger(redisClient, redisTTL)
	} else {
		rooms = memory.NewRoomStore()
		ledger = memory.NewLedger()
	}

	timing := app.DefaultTimingConfig()
	timing.Countdown = config.TTLDuration(cfg.Battle.Countdown, timing.Countdown)
	timing.Retention = config.TTLDuration(cfg.Battle.Retention, timing.Retention)
	timing.WaitingTTL = config.TTLDuration(cfg.Battle.WaitingTTL, timing.WaitingTTL)
	if cfg.Battle.Questions > 0 {
		timing.Questions = cfg.Battle.Questions
	}

	settler := app.NewSettler(ledger, logger)
	service := app.NewBattleService(rooms, catalog, settler, timing, app.DefaultScoringConfig(), app.DefaultRewardTable(), logger)
	wsHandler := transport.NewWSHandler(service, logger)

	sweepInterval := config.TTLDuration(cfg.Battle.SweepInterval, 30*time.Second)
	if sweepFlag != "" {
		sweepInterval = config.TTLDuration(sweepFlag, sweepInterval)
	}
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				service.RemoveExpiredRooms()
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting battle room coordinator", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCatalog provides a minimal question pool; swap the loader with the
// Postgres-backed one in production.
func sampleCatalog() map[string][]domain.QuizQuestion {
	return map[string][]domain.QuizQuestion{
		"world-capitals": {
			{
				ID: "wc-1", FieldSlug: "world-capitals", Type: domain.QuestionChoice,
				Prompt: "What is the capital of Japan?",
				Options: []domain.Option{
					{ID: "o1", Text: "Osaka"},
					{ID: "o2", Text: "Tokyo"},
					{ID: "o3", Text: "Kyoto"},
				},
				AnswerOptionID: "o2",
				Explanation:    "Tokyo has been Japan's capital since 1868.",
			},
			{
				ID: "wc-2", FieldSlug: "world-capitals", Type: domain.QuestionChoice,
				Prompt: "What is the capital of Australia?",
				Options: []domain.Option{
					{ID: "o1", Text: "Sydney"},
					{ID: "o2", Text: "Melbourne"},
					{ID: "o3", Text: "Canberra"},
				},
				AnswerOptionID: "o3",
				Explanation:    "Canberra was purpose-built as the capital in 1913.",
			},
			{
				ID: "wc-3", FieldSlug: "world-capitals", Type: domain.QuestionChoice,
				Prompt: "What is the capital of Canada?",
				Options: []domain.Option{
					{ID: "o1", Text: "Ottawa"},
					{ID: "o2", Text: "Toronto"},
					{ID: "o3", Text: "Vancouver"},
				},
				AnswerOptionID: "o1",
				Explanation:    "Ottawa was chosen as capital by Queen Victoria in 1857.",
			},
			{
				ID: "wc-4", FieldSlug: "world-capitals", Type: domain.QuestionChoice,
				Prompt: "What is the capital of Brazil?",
				Options: []domain.Option{
					{ID: "o1", Text: "Rio de Janeiro"},
					{ID: "o2", Text: "Brasília"},
					{ID: "o3", Text: "São Paulo"},
				},
				AnswerOptionID: "o2",
				Explanation:    "Brasília replaced Rio de Janeiro as capital in 1960.",
			},
			{
				ID: "wc-5", FieldSlug: "world-capitals", Type: domain.QuestionMatching,
				Prompt:     "Match each country to its capital.",
				LeftItems:  []string{"France", "Spain", "Italy"},
				RightItems: []string{"Rome", "Paris", "Madrid"},
				AnswerPairs: []domain.MatchPair{
					{Left: "France", Right: "Paris"},
					{Left: "Spain", Right: "Madrid"},
					{Left: "Italy", Right: "Rome"},
				},
				Explanation: "Paris, Madrid and Rome are the respective capitals.",
			},
		},
	}
}
