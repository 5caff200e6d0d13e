// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/server/migrations"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/files"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/folders"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/transcriptions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories bound to a
// caller-supplied DBTX, so the same factories serve plain and transactional work.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Transcriptions(db dbx.DBTX) transcriptions.Repository {
	return transcriptions.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
