// Package rest exposes the folder, file, transcription and export operations
// as a bearer-authenticated JSON API on top of fiber.
package rest

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/metrics"
	"github.com/dmitrijs2005/scribe/internal/server/models"
	"github.com/dmitrijs2005/scribe/internal/server/services"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

// maxBatch bounds how many maximum-size files fit in one upload request.
const maxBatch = 8

type FolderService interface {
	Create(ctx context.Context, ownerID, name string) (*models.Folder, error)
	Rename(ctx context.Context, id, ownerID, name string) (*models.Folder, error)
	Get(ctx context.Context, id, ownerID string) (*models.FolderWithFiles, error)
	List(ctx context.Context, ownerID string) (*models.FolderListing, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type FileService interface {
	Reconcile(ctx context.Context, ownerID string, folderID *string) ([]models.CombinedFile, error)
	Upload(ctx context.Context, ownerID, folderID string, uploads []services.Upload) ([]*models.File, error)
	Register(ctx context.Context, ownerID string, reg services.FileRegistration) (*models.File, error)
	Delete(ctx context.Context, ownerID, fileID string) error
}

type TranscriptionService interface {
	Submit(ctx context.Context, ownerID string, req services.SubmitRequest) (*models.Transcription, error)
	ForFile(ctx context.Context, ownerID, fileID string) ([]*models.Transcription, error)
	ForFolder(ctx context.Context, ownerID, folderID string) ([]*models.Transcription, error)
	ForOwner(ctx context.Context, ownerID string) ([]*models.Transcription, error)
}

type ExportService interface {
	ExportFolder(ctx context.Context, folderID, ownerID string) (*services.Archive, error)
}

// Pinger reports metadata store liveness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Folders        FolderService
	Files          FileService
	Transcriptions TranscriptionService
	Export         ExportService
	DB             Pinger
	SecretKey      []byte
	MaxUploadSize  int64
	Logger         logging.Logger
	Metrics        *metrics.Metrics
}

type Server struct {
	address string
	app     *fiber.App
	logger  logging.Logger
}

func NewServer(address string, deps Deps) *Server {
	logger := deps.Logger.With("module", "http_server")
	deps.Logger = logger
	return &Server{
		address: address,
		app:     NewApp(deps),
		logger:  logger,
	}
}

// NewApp builds the fiber application with all routes registered.
func NewApp(deps Deps) *fiber.App {
	h := &handlers{
		folders:        deps.Folders,
		files:          deps.Files,
		transcriptions: deps.Transcriptions,
		export:         deps.Export,
		db:             deps.DB,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
	}

	bodyLimit := fiber.DefaultBodyLimit
	if deps.MaxUploadSize > 0 {
		bodyLimit = int(deps.MaxUploadSize*maxBatch) + 1<<20
	}

	app := fiber.New(fiber.Config{
		AppName:      "scribe",
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler(deps.Logger),
	})

	app.Use(recoverer.New())
	app.Use(requestLogger(deps.Logger, deps.Metrics))

	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	api := app.Group("/api", authMiddleware(deps.SecretKey))

	api.Post("/folders", h.createFolder)
	api.Get("/folders", h.listFolders)
	api.Get("/folders/:id", h.getFolder)
	api.Put("/folders/:id", h.renameFolder)
	api.Delete("/folders/:id", h.deleteFolder)

	api.Get("/files", h.listFiles)
	api.Post("/files", h.registerFile)
	api.Delete("/files/:id", h.deleteFile)
	api.Post("/upload", h.upload)

	api.Post("/transcribe", h.transcribe)
	api.Get("/transcriptions", h.listTranscriptions)

	api.Get("/export", h.exportFolder)

	return app
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		errCh <- s.app.Listen(s.address, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
