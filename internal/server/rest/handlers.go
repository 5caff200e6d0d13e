package rest

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/metrics"
	"github.com/dmitrijs2005/scribe/internal/server/services"
	"github.com/gofiber/fiber/v3"
)

type handlers struct {
	folders        FolderService
	files          FileService
	transcriptions TranscriptionService
	export         ExportService
	db             Pinger
	logger         logging.Logger
	metrics        *metrics.Metrics
}

type nameRequest struct {
	Name string `json:"name"`
}

type registerFileRequest struct {
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

type transcribeRequest struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

type transcribeResponse struct {
	Success         bool   `json:"success"`
	Transcription   string `json:"transcription"`
	TranscriptionID string `json:"transcriptionId"`
	Status          string `json:"status"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *handlers) health(c fiber.Ctx) error {
	if err := h.db.PingContext(c.Context()); err != nil {
		h.logger.Warn(c.Context(), "health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) createFolder(c fiber.Ctx) error {
	var req nameRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest("Folder name is required")
	}

	folder, err := h.folders.Create(c.Context(), ownerID(c), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(folder)
}

func (h *handlers) listFolders(c fiber.Ctx) error {
	listing, err := h.folders.List(c.Context(), ownerID(c))
	if err != nil {
		return err
	}
	return c.JSON(listing)
}

func (h *handlers) getFolder(c fiber.Ctx) error {
	folder, err := h.folders.Get(c.Context(), c.Params("id"), ownerID(c))
	if err != nil {
		return err
	}
	return c.JSON(folder)
}

func (h *handlers) renameFolder(c fiber.Ctx) error {
	var req nameRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest("Folder name is required")
	}

	folder, err := h.folders.Rename(c.Context(), c.Params("id"), ownerID(c), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(folder)
}

func (h *handlers) deleteFolder(c fiber.Ctx) error {
	if err := h.folders.Delete(c.Context(), c.Params("id"), ownerID(c)); err != nil {
		return err
	}
	return c.JSON(successResponse{Success: true})
}

func (h *handlers) listFiles(c fiber.Ctx) error {
	var folderID *string
	if id := c.Query("folderId"); id != "" {
		folderID = &id
	}

	files, err := h.files.Reconcile(c.Context(), ownerID(c), folderID)
	if err != nil {
		return err
	}
	return c.JSON(files)
}

func (h *handlers) registerFile(c fiber.Ctx) error {
	var req registerFileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if req.FolderID == "" || req.Name == "" || req.Size <= 0 || req.MimeType == "" || req.URL == "" {
		return badRequest("Missing required file data")
	}

	file, err := h.files.Register(c.Context(), ownerID(c), services.FileRegistration{
		FolderID: req.FolderID,
		Name:     req.Name,
		Size:     req.Size,
		MimeType: req.MimeType,
		URL:      req.URL,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(file)
}

func (h *handlers) deleteFile(c fiber.Ctx) error {
	if err := h.files.Delete(c.Context(), ownerID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(successResponse{Success: true})
}

// upload accepts one or more multipart "file" parts plus a "folderId" field.
func (h *handlers) upload(c fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest("No file provided")
	}

	headers := form.File["file"]
	if len(headers) == 0 {
		return badRequest("No file provided")
	}

	folderID := firstValue(form.Value["folderId"])
	if folderID == "" {
		return badRequest("Folder ID is required")
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("open upload part %q: %w", fh.Filename, err)
		}
		defer func(f multipart.File) { _ = f.Close() }(f)

		uploads = append(uploads, services.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		})
	}

	created, err := h.files.Upload(c.Context(), ownerID(c), folderID, uploads)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"files": created})
}

func (h *handlers) transcribe(c fiber.Ctx) error {
	var req transcribeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest("Invalid request body")
	}
	if req.FileID == "" && req.FileName == "" {
		return badRequest("File id or name is required")
	}

	tr, err := h.transcriptions.Submit(c.Context(), ownerID(c), services.SubmitRequest{
		FileID:   req.FileID,
		FileName: req.FileName,
	})
	h.metrics.ObserveTranscription(outcome(err))
	if err != nil {
		return err
	}

	return c.JSON(transcribeResponse{
		Success:         true,
		Transcription:   tr.Content,
		TranscriptionID: tr.ID,
		Status:          string(tr.Status),
	})
}

// listTranscriptions answers by file, by folder, or for everything the
// owner has, in that order of precedence.
func (h *handlers) listTranscriptions(c fiber.Ctx) error {
	ctx := c.Context()
	owner := ownerID(c)

	var err error
	var list any
	switch fileID, folderID := c.Query("fileId"), c.Query("folderId"); {
	case fileID != "":
		list, err = h.transcriptions.ForFile(ctx, owner, fileID)
	case folderID != "":
		list, err = h.transcriptions.ForFolder(ctx, owner, folderID)
	default:
		list, err = h.transcriptions.ForOwner(ctx, owner)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transcriptions": list})
}

func (h *handlers) exportFolder(c fiber.Ctx) error {
	folderID := c.Query("folderId")
	if folderID == "" {
		return badRequest("Folder ID is required")
	}

	archive, err := h.export.ExportFolder(c.Context(), folderID, ownerID(c))
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", archive.Name))
	return c.Send(archive.Data)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, common.ErrConflict):
		return "conflict"
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrNotFound):
		return "rejected"
	default:
		return "failed"
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
