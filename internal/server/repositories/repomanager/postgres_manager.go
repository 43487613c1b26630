package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/bashaMendi/ToDo-back/internal/dbx"
	"github.com/bashaMendi/ToDo-back/internal/server/migrations"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/tasks"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/users"
)

// PostgresRepositoryManager binds repositories to PostgreSQL handles.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs the manager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Tasks(db dbx.DBTX) tasks.Repository {
	return tasks.NewPostgresRepository(db)
}

// OpenPostgres opens the pgx-backed database handle, verifies connectivity,
// and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.UpContext(ctx, db, ".")
}
