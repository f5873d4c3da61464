package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"aichat/internal/config"
	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/repositories"
	"aichat/internal/httputil"
	"aichat/internal/storage"
)

// FileHandler serves upload, inline read and download of user files.
type FileHandler struct {
	files  repositories.FileRepository
	blobs  storage.BlobStore
	cfg    *config.Config
	logger *slog.Logger
}

// NewFileHandler creates a file handler.
func NewFileHandler(files repositories.FileRepository, blobs storage.BlobStore, cfg *config.Config, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: files, blobs: blobs, cfg: cfg, logger: logger}
}

type uploadedFileResponse struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Mime         string    `json:"mime"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
	Kind         string    `json:"kind"`
	RawURL       string    `json:"rawUrl"`
	DownloadURL  string    `json:"downloadUrl"`
}

func toUploadedFileResponse(f *models.UploadedFile) uploadedFileResponse {
	kind := "file"
	if f.IsImage() {
		kind = "image"
	}
	return uploadedFileResponse{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		Mime:         f.Mime,
		Size:         f.SizeBytes,
		CreatedAt:    f.CreatedAt,
		Kind:         kind,
		RawURL:       "/api/files/" + f.ID + "/raw",
		DownloadURL:  "/api/files/" + f.ID + "/download",
	}
}

// Upload handles POST /api/files (multipart, field name "file").
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, domain.CodeFileTooLarge, "file is too large")
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, domain.CodeBadRequest, "no file found in upload")
		return
	}
	defer file.Close()

	originalName := storage.SafeBaseName(header.Filename)
	mime := contentTypeOf(header)

	storedName, size, err := h.blobs.Save(originalName, file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, domain.CodeFileTooLarge, "file is too large")
			return
		}
		h.logger.Error("upload write failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, domain.CodeInternal, "failed to store upload")
		return
	}

	row := &models.UploadedFile{
		UserID:       httputil.GetUserID(r),
		StoredName:   storedName,
		OriginalName: originalName,
		Mime:         mime,
		SizeBytes:    size,
	}
	if err := h.files.Create(r.Context(), row); err != nil {
		h.logger.Error("upload record failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]uploadedFileResponse{"file": toUploadedFileResponse(row)})
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Raw handles GET /api/files/{id}/raw, serving the file inline.
func (h *FileHandler) Raw(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// Download handles GET /api/files/{id}/download, forcing an attachment.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *FileHandler) serve(w http.ResponseWriter, r *http.Request, asAttachment bool) {
	row, err := h.files.Get(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, domain.CodeNotFound, "file not found")
			return
		}
		h.logger.Error("file lookup failed", "error", err)
		httputil.RespondDomainError(w, err)
		return
	}

	blob, err := h.blobs.Open(row.StoredName)
	if err != nil {
		h.logger.Error("blob open failed", "file_id", row.ID, "error", err)
		httputil.RespondError(w, http.StatusNotFound, domain.CodeNotFound, "file not found")
		return
	}
	defer blob.Close()

	mime := row.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=0, no-store")
	w.Header().Set("Content-Length", strconv.FormatInt(row.SizeBytes, 10))
	if asAttachment {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(row.OriginalName))
	}

	if _, err := io.Copy(w, blob); err != nil {
		h.logger.Warn("file serve interrupted", "file_id", row.ID, "error", err)
	}
}
