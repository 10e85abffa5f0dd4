// Package migrations holds the bun migrations for the quiz store.
package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations is the ordered set applied by the migrate command.
var Migrations = migrate.NewMigrations()

// createQuizzes creates the quizzes table: the quiz document as JSONB
// keyed by id, its title for listings, and created/updated timestamps
// maintained by QuizLoader.SaveQuiz.
//
//go:embed 20261019120000_create_quizzes.sql
var createQuizzes string

func upCreateQuizzes(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, createQuizzes)
	return err
}

func downCreateQuizzes(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS quizzes`)
	return err
}

func init() {
	Migrations.MustRegister(upCreateQuizzes, downCreateQuizzes)
}
