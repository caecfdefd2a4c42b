package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"cnabd/internal/errors"
	"cnabd/internal/scheduler"
	"cnabd/internal/store"
)

var validate = validator.New()

// RoutineHandler handles routine management and on-demand execution.
type RoutineHandler struct {
	store  *store.Store
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

func NewRoutineHandler(st *store.Store, sched *scheduler.Scheduler, logger *slog.Logger) *RoutineHandler {
	return &RoutineHandler{
		store:  st,
		sched:  sched,
		logger: logger.With(slog.String("handler", "routines")),
	}
}

// Routes sets up the routine routes.
func (h *RoutineHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{routineID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
		r.Post("/run", h.RunNow)
		r.Get("/files", h.ListFiles)
	})
	return r
}

// RoutineRequest is the create/update payload.
type RoutineRequest struct {
	Name       string  `json:"name" validate:"required"`
	Company    string  `json:"company"`
	FolderPath string  `json:"folder_path" validate:"required"`
	Frequency  string  `json:"frequency" validate:"required,oneof=hourly daily weekly"`
	TimeOfDay  *string `json:"time_of_day,omitempty"`
}

// Bind implements render.Binder; it validates the payload.
func (req *RoutineRequest) Bind(r *http.Request) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	if req.TimeOfDay != nil && *req.TimeOfDay != "" {
		if _, err := time.Parse("15:04", *req.TimeOfDay); err != nil {
			return errors.ErrValidation("time_of_day", "must be HH:MM")
		}
	}
	return nil
}

// List handles GET /api/routines
func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	routines, err := h.store.ListRoutines()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list routines", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, routines)
}

// Create handles POST /api/routines
func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RoutineRequest
	if err := render.Bind(r, &req); err != nil {
		errors.WriteError(w, errors.InvalidRequestWithError(err))
		return
	}

	routine := &store.Routine{
		Name:       req.Name,
		Company:    req.Company,
		FolderPath: req.FolderPath,
		Frequency:  store.Frequency(req.Frequency),
		TimeOfDay:  req.TimeOfDay,
		Status:     store.RoutineActive,
	}
	if err := h.store.CreateRoutine(routine); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create routine", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}

	h.logger.InfoContext(r.Context(), "routine created",
		slog.String("routine_id", routine.ID),
		slog.String("name", routine.Name))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, routine)
}

// Get handles GET /api/routines/{routineID}
func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	routine, ok := h.load(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, routine)
}

// Update handles PUT /api/routines/{routineID}
func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	routine, ok := h.load(w, r)
	if !ok {
		return
	}

	var req RoutineRequest
	if err := render.Bind(r, &req); err != nil {
		errors.WriteError(w, errors.InvalidRequestWithError(err))
		return
	}

	routine.Name = req.Name
	routine.Company = req.Company
	routine.FolderPath = req.FolderPath
	routine.Frequency = store.Frequency(req.Frequency)
	routine.TimeOfDay = req.TimeOfDay

	if err := h.store.SaveRoutine(routine); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to update routine", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, routine)
}

// Delete handles DELETE /api/routines/{routineID}. Tracked files are removed
// with the routine.
func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routineID")
	if err := h.store.DeleteRoutine(id); err != nil {
		if err == store.ErrNotFound {
			errors.WriteError(w, errors.ErrRoutineNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete routine", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// Pause handles POST /api/routines/{routineID}/pause
func (h *RoutineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.RoutinePaused)
}

// Resume handles POST /api/routines/{routineID}/resume
func (h *RoutineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.RoutineActive)
}

// RunNow handles POST /api/routines/{routineID}/run, bypassing the schedule.
func (h *RoutineHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	routine, ok := h.load(w, r)
	if !ok {
		return
	}

	h.logger.InfoContext(r.Context(), "on-demand routine run",
		slog.String("routine_id", routine.ID))

	summary := h.sched.ExecuteRoutine(r.Context(), routine.ID)
	render.JSON(w, r, summary)
}

// ListFiles handles GET /api/routines/{routineID}/files
func (h *RoutineHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	routine, ok := h.load(w, r)
	if !ok {
		return
	}

	files, err := h.store.ListTrackedFiles(routine.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list tracked files", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, files)
}

func (h *RoutineHandler) setStatus(w http.ResponseWriter, r *http.Request, status store.RoutineStatus) {
	id := chi.URLParam(r, "routineID")
	if err := h.store.SetRoutineStatus(id, status); err != nil {
		if err == store.ErrNotFound {
			errors.WriteError(w, errors.ErrRoutineNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to set routine status", slog.String("error", err.Error()))
		errors.WriteError(w, errors.ErrInternalServer)
		return
	}
	render.JSON(w, r, map[string]interface{}{"success": true, "status": status})
}

func (h *RoutineHandler) load(w http.ResponseWriter, r *http.Request) (*store.Routine, bool) {
	id := chi.URLParam(r, "routineID")
	routine, err := h.store.GetRoutine(id)
	if err != nil {
		if err == store.ErrNotFound {
			errors.WriteError(w, errors.ErrRoutineNotFound)
		} else {
			h.logger.ErrorContext(r.Context(), "failed to load routine", slog.String("error", err.Error()))
			errors.WriteError(w, errors.ErrInternalServer)
		}
		return nil, false
	}
	return routine, true
}
