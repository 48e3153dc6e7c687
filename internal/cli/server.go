package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/config"
	"pair-quiz-service/internal/infra/memory"
	"pair-quiz-service/internal/infra/postgres"
	redisstore "pair-quiz-service/internal/infra/redis"
	"pair-quiz-service/internal/logging"
	"pair-quiz-service/internal/metrics"
	transport "pair-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the pair quiz server",
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
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger, false); err != nil {
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

	redisClient, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(memory.SampleQuestions())
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	}

	questionsTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisstore.NewQuestionBank(redisClient, loader, questionsTTL)
	} else {
		bank = memory.NewQuestionBank(loader, questionsTTL)
	}

	games, storeName := selectGameStore(pool, redisClient)
	logging.Info(logger, "game store selected", logging.FieldStore, storeName)

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
	}

	opts := []app.Option{app.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, app.WithMetrics(recorder))
	}
	if redisClient != nil {
		opts = append(opts, app.WithUpdateBus(redisstore.NewGameUpdateBus(redisClient)))
	}
	service := app.NewPairGameService(games, bank, opts...)

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenTTL, 24*time.Hour))
	router := transport.NewRouter(service, auth, transport.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        recorder,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket connections outlive any fixed deadline
		IdleTimeout: 60 * time.Second,
	}

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go func() {
		if err := service.RelayUpdates(runCtx); err != nil {
			logging.Error(logger, "game update relay stopped", err)
		}
	}()
	forfeitAfter := config.Duration(cfg.Game.ForfeitAfter, 0)
	if forfeitAfter > 0 {
		interval := config.Duration(cfg.Game.SweepInterval, 10*time.Second)
		logging.Info(logger, "abandoned game sweeper enabled", "forfeit_after", forfeitAfter, "interval", interval)
		go service.RunSweeper(runCtx, interval, forfeitAfter)
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info(logger, "starting pair quiz service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		logging.Info(logger, "shutting down server")
	case <-ctx.Done():
		logging.Info(logger, "context canceled, shutting down server")
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openRedis returns nil when no Redis address is configured.
func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// selectGameStore prefers Postgres, then Redis, then the in-process store.
func selectGameStore(pool *pgxpool.Pool, client *redis.Client) (app.GameRepository, string) {
	switch {
	case pool != nil:
		return postgres.NewGameStore(pool), "postgres"
	case client != nil:
		return redisstore.NewGameStore(client), "redis"
	default:
		return memory.NewGameStore(), "memory"
	}
}
