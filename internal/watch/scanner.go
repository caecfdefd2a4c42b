package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Scanner enumerates eligible files in a routine's watch folder.
type Scanner struct {
	extension string
	logger    *slog.Logger
}

// NewScanner creates a scanner for the given file extension (matched
// case-insensitively, e.g. ".RET").
func NewScanner(extension string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{extension: strings.ToLower(extension), logger: logger}
}

// ListEligibleFiles returns absolute paths of files in folderPath whose name
// ends in the configured extension. A missing folder is created recursively
// and yields an empty list; a first run against a not-yet-provisioned folder
// is not an error. A folder without read permission is logged as a fault and
// yields an empty list so the routine is retried on the next tick.
// The returned sequence has no ordering guarantee.
func (s *Scanner) ListEligibleFiles(folderPath string) ([]string, error) {
	info, err := os.Stat(folderPath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(folderPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create watch folder %s: %w", folderPath, mkErr)
		}
		s.logger.Info("watch folder created", slog.String("folder", folderPath))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch folder %s: %w", folderPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", folderPath)
	}

	entries, err := os.ReadDir(folderPath)
	if err != nil {
		if os.IsPermission(err) {
			s.logger.Error("watch folder not readable",
				slog.String("folder", folderPath),
				slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read watch folder %s: %w", folderPath, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), s.extension) {
			files = append(files, filepath.Join(folderPath, entry.Name()))
		}
	}

	return files, nil
}
