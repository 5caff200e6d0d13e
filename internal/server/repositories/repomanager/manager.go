package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/scribe/internal/dbx"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/files"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/folders"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/transcriptions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Folders(db dbx.DBTX) folders.Repository
	Files(db dbx.DBTX) files.Repository
	Transcriptions(db dbx.DBTX) transcriptions.Repository
}
