package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"pair-quiz-service/internal/config"
	"pair-quiz-service/internal/infra/memory"
	"pair-quiz-service/internal/infra/postgres"
	redisstore "pair-quiz-service/internal/infra/redis"
	"pair-quiz-service/internal/logging"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			return runMigrationsWithConfig(cmd.Context(), cfg, logger, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the sample question pool after migrating")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, logger *slog.Logger, seed bool) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()

	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		logging.Info(logger, "no new migrations")
	} else {
		logging.Info(logger, "migrations applied", "group", group.String())
	}

	if seed {
		questions := memory.SampleQuestions()
		if err := postgres.SeedQuestions(ctx, db, questions); err != nil {
			return err
		}
		logging.Info(logger, "sample questions seeded", logging.FieldCount, len(questions))
		if err := refreshQuestionCache(ctx, cfg, logger); err != nil {
			return err
		}
	}
	return nil
}

// refreshQuestionCache drops the shared question pool so running servers pick up seeded questions.
func refreshQuestionCache(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	client, err := openRedis(ctx, cfg)
	if err != nil || client == nil {
		return err
	}
	defer client.Close()

	if err := redisstore.InvalidateQuestionPool(ctx, client); err != nil {
		return fmt.Errorf("invalidate question cache: %w", err)
	}
	logging.Info(logger, "question cache invalidated")
	return nil
}
