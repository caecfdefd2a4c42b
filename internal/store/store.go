package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator for routines, tracked files, upload
// records, audit logs and diagnostic snapshots.
type Store struct {
	db *gorm.DB
}

// New creates a Store backed by the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- Routines ---

// CreateRoutine persists a new routine.
func (s *Store) CreateRoutine(r *Routine) error {
	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("failed to create routine: %w", err)
	}
	return nil
}

// GetRoutine loads one routine by ID.
func (s *Store) GetRoutine(id string) (*Routine, error) {
	var r Routine
	if err := s.db.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load routine: %w", err)
	}
	return &r, nil
}

// ListRoutines returns all routines, newest first.
func (s *Store) ListRoutines() ([]Routine, error) {
	var routines []Routine
	if err := s.db.Order("created_at DESC").Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	return routines, nil
}

// ListActiveRoutines returns all routines with status active.
func (s *Store) ListActiveRoutines() ([]Routine, error) {
	var routines []Routine
	if err := s.db.Where("status = ?", RoutineActive).Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("failed to list active routines: %w", err)
	}
	return routines, nil
}

// SaveRoutine persists changes to an existing routine.
func (s *Store) SaveRoutine(r *Routine) error {
	if err := s.db.Save(r).Error; err != nil {
		return fmt.Errorf("failed to update routine: %w", err)
	}
	return nil
}

// SetRoutineStatus toggles a routine's lifecycle status.
func (s *Store) SetRoutineStatus(id string, status RoutineStatus) error {
	res := s.db.Model(&Routine{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set routine status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRoutineRun records the outcome of a run: run timestamps and the
// post-run status.
func (s *Store) UpdateRoutineRun(id string, lastRun, nextRun time.Time, status RoutineStatus) error {
	res := s.db.Model(&Routine{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_run": lastRun,
		"next_run": nextRun,
		"status":   status,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update routine run state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoutine removes a routine and cascades to its tracked files.
func (s *Store) DeleteRoutine(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("routine_id = ?", id).Delete(&TrackedFile{}).Error; err != nil {
			return fmt.Errorf("failed to delete tracked files: %w", err)
		}
		res := tx.Delete(&Routine{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete routine: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Tracked files ---

// IsAlreadyImported reports whether a completed tracked file exists with
// exactly this (routine, path, fingerprint) triple. This is the dedup
// guarantee for idempotent re-scans.
func (s *Store) IsAlreadyImported(routineID, path, fingerprint string) (bool, error) {
	var count int64
	err := s.db.Model(&TrackedFile{}).
		Where("routine_id = ? AND file_path = ? AND fingerprint = ? AND status = ?",
			routineID, path, fingerprint, FileCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check imported state: %w", err)
	}
	return count > 0, nil
}

// RegisterCandidate creates a pending tracked file row and returns its ID.
func (s *Store) RegisterCandidate(routineID, name, path, fingerprint string) (string, error) {
	f := TrackedFile{
		RoutineID:   routineID,
		FileName:    name,
		FilePath:    path,
		Fingerprint: fingerprint,
		Status:      FilePending,
	}
	if err := s.db.Create(&f).Error; err != nil {
		return "", fmt.Errorf("failed to register tracked file: %w", err)
	}
	return f.ID, nil
}

// TransitionTracked sets a tracked file's status. On completed it stamps the
// import time and stores the assigned reference identifier; on error it stores
// the error detail.
func (s *Store) TransitionTracked(id string, status FileStatus, referenceID, errorDetail *string) error {
	updates := map[string]interface{}{"status": status}
	if status == FileCompleted {
		updates["imported_at"] = time.Now()
		if referenceID != nil {
			updates["reference_id"] = *referenceID
		}
	}
	if status == FileError && errorDetail != nil {
		updates["error_detail"] = *errorDetail
	}

	res := s.db.Model(&TrackedFile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition tracked file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTrackedFile loads one tracked file by ID.
func (s *Store) GetTrackedFile(id string) (*TrackedFile, error) {
	var f TrackedFile
	if err := s.db.First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load tracked file: %w", err)
	}
	return &f, nil
}

// ListTrackedFiles returns a routine's tracked files, newest first.
func (s *Store) ListTrackedFiles(routineID string) ([]TrackedFile, error) {
	var files []TrackedFile
	if err := s.db.Where("routine_id = ?", routineID).Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}
	return files, nil
}

// CountTrackedFiles counts tracked files for a routine, optionally by status.
func (s *Store) CountTrackedFiles(routineID string, status FileStatus) (int64, error) {
	var count int64
	q := s.db.Model(&TrackedFile{}).Where("routine_id = ?", routineID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count tracked files: %w", err)
	}
	return count, nil
}

// --- Import files (manual upload path) ---

// CreateImportFile persists a new upload record.
func (s *Store) CreateImportFile(f *ImportFile) error {
	if err := s.db.Create(f).Error; err != nil {
		return fmt.Errorf("failed to create import file: %w", err)
	}
	return nil
}

// GetImportFile loads one upload record by ID.
func (s *Store) GetImportFile(id string) (*ImportFile, error) {
	var f ImportFile
	if err := s.db.First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load import file: %w", err)
	}
	return &f, nil
}

// ListImportFiles returns all upload records, newest first.
func (s *Store) ListImportFiles() ([]ImportFile, error) {
	var files []ImportFile
	if err := s.db.Order("uploaded_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list import files: %w", err)
	}
	return files, nil
}

// TransitionImportFile sets an upload record's status, stamping the processed
// time and reference identifier the same way TransitionTracked does.
func (s *Store) TransitionImportFile(id string, status FileStatus, referenceID, errorDetail *string) error {
	updates := map[string]interface{}{"status": status}
	if status == FileCompleted || status == FileError {
		updates["processed_at"] = time.Now()
	}
	if status == FileCompleted && referenceID != nil {
		updates["reference_id"] = *referenceID
	}
	if status == FileError && errorDetail != nil {
		updates["error_detail"] = *errorDetail
	}

	res := s.db.Model(&ImportFile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition import file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Logs ---

// AppendLog adds an audit log entry for a file. The log is append-only; this
// is the durable trail for unattended runs.
func (s *Store) AppendLog(fileID string, level LogLevel, message string) error {
	entry := LogEntry{FileID: fileID, Level: level, Message: message}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// ListLogs returns a file's log entries, oldest first.
func (s *Store) ListLogs(fileID string) ([]LogEntry, error) {
	var entries []LogEntry
	if err := s.db.Where("file_id = ?", fileID).Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return entries, nil
}

// --- Snapshots ---

// AddSnapshot records a diagnostic screenshot for a file at a step boundary.
func (s *Store) AddSnapshot(fileID string, step int, label, path string) error {
	snap := Snapshot{FileID: fileID, Step: step, Label: label, Path: path}
	if err := s.db.Create(&snap).Error; err != nil {
		return fmt.Errorf("failed to add snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a file's snapshots ordered by step.
func (s *Store) ListSnapshots(fileID string) ([]Snapshot, error) {
	var snaps []Snapshot
	if err := s.db.Where("file_id = ?", fileID).Order("step ASC").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}
