package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"pair-quiz-service/internal/domain"
	pgmigrations "pair-quiz-service/internal/infra/postgres/migrations"
)

type questionRow struct {
	bun.BaseModel `bun:"table:quiz_questions"`

	ID             string   `bun:"id,pk"`
	Body           string   `bun:"body,notnull"`
	CorrectAnswers []string `bun:"correct_answers,type:jsonb"`
	Published      bool     `bun:"published"`
}

// OpenBun opens a bun handle over the pgdriver connector for migrations and seeding.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending migration and returns the applied group.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return group, nil
}

// SeedQuestions upserts questions as published.
func SeedQuestions(ctx context.Context, db *bun.DB, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow{ID: q.ID, Body: q.Body, CorrectAnswers: q.CorrectAnswers, Published: true})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("body = EXCLUDED.body").
		Set("correct_answers = EXCLUDED.correct_answers").
		Set("published = EXCLUDED.published").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	return nil
}
