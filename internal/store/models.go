package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Frequency is how often a routine's watch folder is polled.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// RoutineStatus is the lifecycle status of a routine.
type RoutineStatus string

const (
	RoutineActive RoutineStatus = "active"
	RoutinePaused RoutineStatus = "paused"
	RoutineError  RoutineStatus = "error"
)

// FileStatus is the import lifecycle status shared by tracked and uploaded files.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
)

// LogLevel classifies audit log entries.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// Routine is a configured watch-and-import task bound to one folder and one
// operating context (company) in the target system.
type Routine struct {
	ID         string        `gorm:"primaryKey" json:"id"`
	Name       string        `gorm:"not null" json:"name"`
	Company    string        `json:"company"`
	FolderPath string        `gorm:"not null;column:folder_path" json:"folder_path"`
	Frequency  Frequency     `gorm:"not null" json:"frequency"`
	TimeOfDay  *string       `gorm:"column:time_of_day" json:"time_of_day,omitempty"`
	Status     RoutineStatus `gorm:"not null;default:active" json:"status"`
	LastRun    *time.Time    `gorm:"column:last_run" json:"last_run,omitempty"`
	NextRun    *time.Time    `gorm:"column:next_run" json:"next_run,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (r *Routine) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (Routine) TableName() string {
	return "routines"
}

// TrackedFile is a file discovered by folder polling, followed through the
// dedup/import lifecycle. Once completed for a given fingerprint it is never
// mutated again; re-scans of the same (routine, path, fingerprint) are skipped.
type TrackedFile struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	RoutineID   string     `gorm:"not null;index;column:routine_id" json:"routine_id"`
	FileName    string     `gorm:"not null;column:file_name" json:"file_name"`
	FilePath    string     `gorm:"not null;column:file_path" json:"file_path"`
	Fingerprint string     `gorm:"not null;index" json:"fingerprint"`
	Status      FileStatus `gorm:"not null;default:pending" json:"status"`
	ReferenceID *string    `gorm:"column:reference_id" json:"reference_id,omitempty"`
	ErrorDetail *string    `gorm:"column:error_detail;type:text" json:"error_detail,omitempty"`
	ImportedAt  *time.Time `gorm:"column:imported_at" json:"imported_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (f *TrackedFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

func (TrackedFile) TableName() string {
	return "tracked_files"
}

// ImportFile is a manually uploaded file processed once on demand, independent
// of folder polling.
type ImportFile struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	FileName    string     `gorm:"not null;column:file_name" json:"file_name"`
	StoragePath string     `gorm:"not null;column:storage_path" json:"storage_path"`
	Status      FileStatus `gorm:"not null;default:pending" json:"status"`
	ReferenceID *string    `gorm:"column:reference_id" json:"reference_id,omitempty"`
	ErrorDetail *string    `gorm:"column:error_detail;type:text" json:"error_detail,omitempty"`
	UploadedAt  time.Time  `gorm:"column:uploaded_at" json:"uploaded_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (f *ImportFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}
	return nil
}

func (ImportFile) TableName() string {
	return "import_files"
}

// LogEntry is an append-only audit record tied to a tracked or uploaded file.
type LogEntry struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	FileID    string    `gorm:"not null;index;column:file_id" json:"file_id"`
	Level     LogLevel  `gorm:"not null;default:info" json:"level"`
	Message   string    `gorm:"not null;type:text" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *LogEntry) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

func (LogEntry) TableName() string {
	return "log_entries"
}

// Snapshot is a diagnostic screenshot captured at a workflow step boundary.
type Snapshot struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	FileID    string    `gorm:"not null;index;column:file_id" json:"file_id"`
	Step      int       `gorm:"not null" json:"step"`
	Label     string    `gorm:"not null" json:"label"`
	Path      string    `gorm:"not null" json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Snapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (Snapshot) TableName() string {
	return "snapshots"
}
