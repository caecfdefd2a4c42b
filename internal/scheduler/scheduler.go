// Package scheduler owns the configured routines: it computes each routine's
// next-due time, wakes on a fixed tick and feeds due routines' files through
// the import engine one at a time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cnabd/internal/infrastructure"
	"cnabd/internal/qprof"
	"cnabd/internal/store"
	"cnabd/internal/watch"
)

// Engine runs the import workflow for one file. Satisfied by *qprof.Engine.
type Engine interface {
	ProcessFile(ctx context.Context, fileID, fileName, filePath, company string) qprof.Result
}

// Summary is the result of one routine execution.
type Summary struct {
	Success        bool `json:"success"`
	FilesProcessed int  `json:"filesProcessed"`
	Errors         int  `json:"errors"`
}

// Scheduler triggers routine executions on a fixed wall-clock interval, with
// an eager pass at startup.
type Scheduler struct {
	store   *store.Store
	engine  Engine
	scanner *watch.Scanner
	tick    time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool

	// Held for the duration of one full pass; ticks are not re-entrant.
	passMu sync.Mutex

	// Serializes individual routine executions across the tick and the
	// on-demand HTTP path. Without it an overlapping run re-scans the folder
	// before the first run completes its rows and imports the same file twice.
	runMu sync.Mutex
}

func New(st *store.Store, engine Engine, scanner *watch.Scanner, tick time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:   st,
		engine:  engine,
		scanner: scanner,
		tick:    tick,
		logger:  logger,
	}
}

// Start begins the periodic tick and runs one pass immediately. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.Warn("scheduler already running")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.tick), func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	go s.Tick(ctx)

	c.Start()
	s.cron = c
	s.started = true

	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))
	return nil
}

// Stop halts the periodic tick and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	<-s.cron.Stop().Done()
	s.passMu.Lock()
	s.passMu.Unlock()

	s.started = false
	s.logger.Info("scheduler stopped")
}

// Tick runs one scheduling pass: every active routine whose nextRun is unset
// or due gets executed, strictly one routine at a time. A tick arriving while
// the previous pass is still running is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.passMu.TryLock() {
		s.logger.Warn("previous scheduling pass still running, skipping tick")
		return
	}
	defer s.passMu.Unlock()

	routines, err := s.store.ListActiveRoutines()
	if err != nil {
		s.logger.Error("failed to load active routines", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("scheduling pass", slog.Int("active_routines", len(routines)))

	now := time.Now()
	for _, r := range routines {
		if r.NextRun != nil && r.NextRun.After(now) {
			s.logger.Debug("routine not due yet",
				slog.String("routine", r.Name),
				slog.Time("next_run", *r.NextRun))
			continue
		}
		s.ExecuteRoutine(ctx, r.ID)
	}
}

// ExecuteRoutine scans the routine's folder, filters out already-imported
// files and runs the import workflow for each remaining file. Per-file faults
// never abort sibling files; the routine is marked error only when a run
// yields zero successes and at least one failure. Executions are serialized:
// a run arriving while another is in flight waits for it, so the dedup check
// always sees the previous run's final row states.
func (s *Scheduler) ExecuteRoutine(ctx context.Context, routineID string) Summary {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger := s.logger.With(slog.String("routine_id", routineID))

	routine, err := s.store.GetRoutine(routineID)
	if err != nil {
		logger.Warn("routine not found")
		return Summary{Errors: 1}
	}
	if routine.Status != store.RoutineActive {
		logger.Warn("routine not active, skipping", slog.String("status", string(routine.Status)))
		return Summary{}
	}

	logger.Info("executing routine",
		slog.String("name", routine.Name),
		slog.String("company", routine.Company),
		slog.String("folder", routine.FolderPath),
		slog.String("frequency", string(routine.Frequency)))

	_, statErr := os.Stat(routine.FolderPath)
	folderMissing := os.IsNotExist(statErr)

	files, err := s.scanner.ListEligibleFiles(routine.FolderPath)
	if err != nil {
		logger.Error("folder scan failed", slog.String("error", err.Error()))
		s.finishRun(routine, 0, 0)
		return Summary{}
	}
	if folderMissing {
		logger.Warn("watch folder was missing, created it for the next run")
		s.finishRun(routine, 0, 0)
		return Summary{}
	}

	logger.Info("folder scanned", slog.Int("eligible_files", len(files)))

	processed := 0
	failures := 0

	for _, path := range files {
		name := filepath.Base(path)

		digest, err := watch.Fingerprint(path)
		if err != nil {
			// The file disappeared or became unreadable between listing
			// and hashing; fault is scoped to this file only.
			logger.Error("fingerprint failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			failures++
			continue
		}

		imported, err := s.store.IsAlreadyImported(routine.ID, path, digest)
		if err != nil {
			logger.Error("dedup check failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			failures++
			continue
		}
		if imported {
			logger.Info("file already imported, skipping", slog.String("file", name))
			continue
		}

		trackedID, err := s.store.RegisterCandidate(routine.ID, name, path, digest)
		if err != nil {
			logger.Error("failed to register file",
				slog.String("file", name),
				slog.String("error", err.Error()))
			failures++
			continue
		}

		if err := s.store.TransitionTracked(trackedID, store.FileProcessing, nil, nil); err != nil {
			logger.Error("failed to mark file processing", slog.String("error", err.Error()))
		}

		logger.Info("processing new file", slog.String("file", name))
		result := s.engine.ProcessFile(ctx, trackedID, name, path, routine.Company)

		if result.Success {
			ref := result.ReferenceID
			if err := s.store.TransitionTracked(trackedID, store.FileCompleted, &ref, nil); err != nil {
				logger.Error("failed to mark file completed", slog.String("error", err.Error()))
			}
			logger.Info("file imported",
				slog.String("file", name),
				slog.String("reference_id", result.ReferenceID))
			infrastructure.FilesImported.Inc()
			processed++
		} else {
			detail := result.Error
			if err := s.store.TransitionTracked(trackedID, store.FileError, nil, &detail); err != nil {
				logger.Error("failed to mark file errored", slog.String("error", err.Error()))
			}
			logger.Error("file import failed",
				slog.String("file", name),
				slog.String("reason", result.Error))
			infrastructure.ImportFailures.WithLabelValues(result.Error).Inc()
			failures++
		}
	}

	s.finishRun(routine, processed, failures)

	logger.Info("routine execution finished",
		slog.Int("files_processed", processed),
		slog.Int("errors", failures))

	return Summary{Success: true, FilesProcessed: processed, Errors: failures}
}

// finishRun stamps the run timestamps and downgrades the routine to error
// only on a run with zero successes and at least one failure.
func (s *Scheduler) finishRun(routine *store.Routine, processed, failures int) {
	now := time.Now()
	next := ComputeNextRun(routine.Frequency, routine.TimeOfDay, now)

	status := store.RoutineActive
	if failures > 0 && processed == 0 {
		status = store.RoutineError
	}

	infrastructure.RoutineRuns.WithLabelValues(string(status)).Inc()

	if err := s.store.UpdateRoutineRun(routine.ID, now, next, status); err != nil {
		s.logger.Error("failed to update routine run state",
			slog.String("routine_id", routine.ID),
			slog.String("error", err.Error()))
	}
}

// ProcessImportFile runs the workflow for one manually uploaded file,
// independent of any routine or schedule.
func (s *Scheduler) ProcessImportFile(ctx context.Context, importFileID, company string) qprof.Result {
	f, err := s.store.GetImportFile(importFileID)
	if err != nil {
		return qprof.Result{Error: "import file not found"}
	}

	if err := s.store.TransitionImportFile(f.ID, store.FileProcessing, nil, nil); err != nil {
		s.logger.Error("failed to mark import file processing", slog.String("error", err.Error()))
	}

	result := s.engine.ProcessFile(ctx, f.ID, f.FileName, f.StoragePath, company)

	if result.Success {
		ref := result.ReferenceID
		if err := s.store.TransitionImportFile(f.ID, store.FileCompleted, &ref, nil); err != nil {
			s.logger.Error("failed to mark import file completed", slog.String("error", err.Error()))
		}
	} else {
		detail := result.Error
		if err := s.store.TransitionImportFile(f.ID, store.FileError, nil, &detail); err != nil {
			s.logger.Error("failed to mark import file errored", slog.String("error", err.Error()))
		}
	}

	return result
}

// ComputeNextRun returns the next due time for a routine evaluated at now.
// hourly is now plus one hour, weekly now plus seven days. daily with a
// time-of-day runs today at that time if still ahead, otherwise tomorrow;
// without one it behaves as now plus 24 hours.
func ComputeNextRun(freq store.Frequency, timeOfDay *string, now time.Time) time.Time {
	switch freq {
	case store.FrequencyHourly:
		return now.Add(time.Hour)
	case store.FrequencyWeekly:
		return now.Add(7 * 24 * time.Hour)
	case store.FrequencyDaily:
		if timeOfDay != nil && *timeOfDay != "" {
			if tod, err := time.Parse("15:04", *timeOfDay); err == nil {
				next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
				if !next.After(now) {
					next = next.AddDate(0, 0, 1)
				}
				return next
			}
		}
		return now.Add(24 * time.Hour)
	default:
		return now.Add(24 * time.Hour)
	}
}
