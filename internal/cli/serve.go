package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizlive/internal/app"
	"quizlive/internal/config"
	"quizlive/internal/infra/memory"
	pgloader "quizlive/internal/infra/postgres"
	infraredis "quizlive/internal/infra/redis"
	"quizlive/internal/practice"
	transport "quizlive/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that runs the game server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the quiz game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return runServer(cmd.Context(), cfg, *port, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	loaders := memory.ChainLoader{}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loaders = append(loaders, pgloader.NewQuizLoader(pool))
	}
	if cfg.Quiz.Dir != "" {
		loaders = append(loaders, memory.NewFileQuizLoader(cfg.Quiz.Dir))
	}
	loaders = append(loaders, memory.NewStaticQuizLoader(sampleQuizzes()))

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loaders, quizTTL, log)
	} else {
		quizRepo = memory.NewQuizRepository(loaders, quizTTL)
	}

	var store app.GameRepository
	var redisStore *infraredis.GameStore
	if redisClient != nil {
		redisStore = infraredis.NewGameStore(redisClient, redisTTL)
		store = redisStore
	} else {
		store = memory.NewGameStore()
	}
	service := app.NewGameService(store, quizRepo, practice.Options{
		ExtendSeconds: cfg.Client.ExtendSeconds,
		RevealDelay:   cfg.RevealDelay(),
		Consensus:     cfg.Consensus,
		Log:           log,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(transport.NewWSHandler(service, log), cfg.Server.Uploads),
		ReadTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz server", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisStore != nil && redisTTL > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(redisTTL / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := redisStore.Touch(ctx); err != nil {
						log.Warn("refresh game liveness", zap.Error(err))
					}
				}
			}
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
