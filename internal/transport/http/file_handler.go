package http

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"cnabd/internal/errors"
	"cnabd/internal/scheduler"
	"cnabd/internal/store"
)

// maxUploadSize bounds manual uploads; CNAB return files are small text files.
const maxUploadSize = 10 << 20

// FileHandler handles the manual upload path and per-file diagnostics.
type FileHandler struct {
	store     *store.Store
	sched     *scheduler.Scheduler
	uploadDir string
	logger    *slog.Logger
}

func NewFileHandler(st *store.Store, sched *scheduler.Scheduler, uploadDir string, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		store:     st,
		sched:     sched,
		uploadDir: uploadDir,
		logger:    logger.With(slog.String("handler", "files")),
	}
}

// Routes sets up the file routes.
func (h *FileHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Upload)
	r.Route("/{fileID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/process", h.ProcessNow)
		r.Get("/logs", h.Logs)
		r.Get("/snapshots", h.Snapshots)
	})
	return r
}

// List handles GET /api/files
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListImportFiles()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list import files", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, files)
}

// Upload handles POST /api/files: stores the uploaded file and creates its
// pending record. Processing is a separate call.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errors.WriteError(w, errors.InvalidRequestWithError(err))
		return
	}

	src, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, errors.ErrValidation("file", "multipart field 'file' is required"))
		return
	}
	defer src.Close()

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create upload dir", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}

	// Store the bytes before creating the record, so a failed write leaves no
	// record behind. The ID prefix keeps repeated uploads of the same name
	// from clobbering each other.
	id := uuid.New().String()
	name := filepath.Base(header.Filename)
	storagePath := filepath.Join(h.uploadDir, id+"_"+name)

	dst, err := os.Create(storagePath)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to store upload", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(storagePath)
		h.logger.ErrorContext(r.Context(), "failed to write upload", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(storagePath)
		h.logger.ErrorContext(r.Context(), "failed to write upload", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}

	record := &store.ImportFile{
		ID:          id,
		FileName:    name,
		StoragePath: storagePath,
	}
	if err := h.store.CreateImportFile(record); err != nil {
		os.Remove(storagePath)
		h.logger.ErrorContext(r.Context(), "failed to create import file record", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}

	h.logger.InfoContext(r.Context(), "file uploaded",
		slog.String("file_id", record.ID),
		slog.String("name", record.FileName))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// Get handles GET /api/files/{fileID}
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.load(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, f)
}

// ProcessRequest optionally scopes a manual import to an operating context.
type ProcessRequest struct {
	Company string `json:"company"`
}

// Bind implements render.Binder.
func (req *ProcessRequest) Bind(*http.Request) error { return nil }

// ProcessNow handles POST /api/files/{fileID}/process: runs the import
// workflow for one uploaded file, outside any routine.
func (h *FileHandler) ProcessNow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.load(w, r)
	if !ok {
		return
	}

	var req ProcessRequest
	if r.ContentLength > 0 {
		if err := render.Bind(r, &req); err != nil {
			errors.WriteError(w, errors.InvalidRequestWithError(err))
			return
		}
	}

	h.logger.InfoContext(r.Context(), "on-demand file processing",
		slog.String("file_id", f.ID),
		slog.String("name", f.FileName))

	result := h.sched.ProcessImportFile(r.Context(), f.ID, req.Company)
	render.JSON(w, r, result)
}

// Logs handles GET /api/files/{fileID}/logs
func (h *FileHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	logs, err := h.store.ListLogs(id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list logs", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, logs)
}

// Snapshots handles GET /api/files/{fileID}/snapshots
func (h *FileHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")
	snaps, err := h.store.ListSnapshots(id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list snapshots", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, snaps)
}

func (h *FileHandler) load(w http.ResponseWriter, r *http.Request) (*store.ImportFile, bool) {
	id := chi.URLParam(r, "fileID")
	f, err := h.store.GetImportFile(id)
	if err != nil {
		if err == store.ErrNotFound {
			errors.WriteError(w, errors.ErrFileNotFound)
		} else {
			h.logger.ErrorContext(r.Context(), "failed to load import file", slog.String("error", err.Error()))
			errors.WriteError(w, errors.ErrInternalServer)
		}
		return nil, false
	}
	return f, true
}
