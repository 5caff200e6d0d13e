// Package server wires configuration, storage backends, the transcription
// engine and the services together, and runs the HTTP API, the gRPC health
// endpoint and the stale-transcription reaper until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/blobstore"
	"github.com/dmitrijs2005/scribe/internal/server/config"
	"github.com/dmitrijs2005/scribe/internal/server/metrics"
	"github.com/dmitrijs2005/scribe/internal/server/reaper"
	"github.com/dmitrijs2005/scribe/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/scribe/internal/server/rest"
	"github.com/dmitrijs2005/scribe/internal/server/services"
	"github.com/dmitrijs2005/scribe/internal/server/transcriber"
	"github.com/dustin/go-humanize"

	gs "github.com/dmitrijs2005/scribe/internal/server/grpc"
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// newBlobStore is a seam for tests.
var newBlobStore = func(ctx context.Context, c blobstore.S3Config) (blobstore.Store, error) {
	return blobstore.NewS3Store(ctx, c)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics

	folderService        *services.FolderService
	fileService          *services.FileService
	transcriptionService *services.TranscriptionService
	exportService        *services.ExportService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	blobs, err := newBlobStore(ctx, blobstore.S3Config{
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		UsePathStyle: c.S3UsePathStyle,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	engine, err := transcriber.New(transcriber.Config{
		Provider:        c.TranscriptionProvider,
		AssemblyAIKey:   c.AssemblyAIKey,
		AssemblyAIModel: c.AssemblyAIModel,
		OpenAIKey:       c.OpenAIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		OpenAIModel:     c.OpenAIModel,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("transcriber init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	policy := services.UploadPolicy{MaxSize: c.MaxUploadSize}

	fs := services.NewFileService(db, rm, blobs, policy, logger)

	app := &App{
		config:               c,
		logger:               logger,
		db:                   db,
		repomanager:          rm,
		metrics:              metrics.New(),
		fileService:          fs,
		folderService:        services.NewFolderService(db, rm, fs, logger),
		transcriptionService: services.NewTranscriptionService(db, rm, blobs, engine, c.SignedURLTTL, c.TranscriptionLease, logger),
		exportService:        services.NewExportService(db, rm, logger),
	}

	logger.Info(ctx, "App initialized",
		"transcription_provider", c.TranscriptionProvider,
		"max_upload_size", humanize.IBytes(uint64(policy.MaxSize)),
	)

	return app, nil
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.db.Close()
}

// Migrate applies pending schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	app.logger.Info(ctx, "Migrations applied")
	return nil
}

// ReapOnce fails transcriptions stuck in processing past the lease.
func (app *App) ReapOnce(ctx context.Context) (int64, error) {
	r, err := reaper.New(app.config.ReaperSchedule, app.transcriptionService, app.logger, app.metrics)
	if err != nil {
		return 0, err
	}
	return r.RunOnce(ctx)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewServer(app.config.HTTPAddr, rest.Deps{
		Folders:        app.folderService,
		Files:          app.fileService,
		Transcriptions: app.transcriptionService,
		Export:         app.exportService,
		DB:             app.db,
		SecretKey:      []byte(app.config.SecretKey),
		MaxUploadSize:  app.config.MaxUploadSize,
		Logger:         app.logger,
		Metrics:        app.metrics,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.db)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run migrates the schema and serves until a termination signal arrives or
// one of the servers fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.Migrate(ctx); err != nil {
		return err
	}

	r, err := reaper.New(app.config.ReaperSchedule, app.transcriptionService, app.logger, app.metrics)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return app.Close()
}
