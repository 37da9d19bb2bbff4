package logging

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ArchivePattern matches run logs rotated by RotateRunLog.
const ArchivePattern = "crucible-*.log"

const archiveStamp = "20060102T150405"

// RotateRunLog moves a non-empty run log aside as crucible-<mtime>.log and
// returns the archive path. Nothing happens when there is no previous log.
func RotateRunLog(dir string) (string, error) {
	current := filepath.Join(dir, LogFileName)
	info, err := os.Stat(current)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", err
	case info.Size() == 0:
		return "", nil
	}
	archived := filepath.Join(dir, "crucible-"+info.ModTime().UTC().Format(archiveStamp)+".log")
	return archived, os.Rename(current, archived)
}

// PruneRunLogs deletes archived run logs last modified more than
// retentionDays ago. Zero or negative retention keeps everything.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int) {
	if retentionDays <= 0 || dir == "" {
		return
	}
	archives, err := filepath.Glob(filepath.Join(dir, ArchivePattern))
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, path := range archives {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on paths.log_dir"),
			)
			continue
		}
		if logger != nil {
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
}
