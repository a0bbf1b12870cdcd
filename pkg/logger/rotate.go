package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fallback limits for the audit trail rotation. Audit volume is tiny next to
// the request logs; the limits are sized so months of transfer records stay
// reviewable on disk.
const (
	defaultAuditMaxSizeMB  = 100
	defaultAuditMaxBackups = 7
	defaultAuditMaxAgeDays = 30

	// backupTimeLayout sorts lexically in chronological order.
	backupTimeLayout = "20060102-150405"
)

// auditWriter rotates the audit trail by size. A full file is renamed to a
// timestamped backup, then backups are pruned by count and age.
type auditWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	written    int64
}

func newAuditWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*auditWriter, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultAuditMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultAuditMaxBackups
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultAuditMaxAgeDays
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &auditWriter{
		path:       path,
		maxSize:    int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *auditWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *auditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

func (w *auditWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.written = info.Size()
	return nil
}

func (w *auditWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.written = 0

	backup := w.path + "." + time.Now().Format(backupTimeLayout)
	if err := os.Rename(w.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	w.prune()
	return nil
}

// prune drops the oldest backups beyond maxBackups, then anything past maxAge.
func (w *auditWriter) prune() {
	backups, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	sort.Strings(backups)

	if extra := len(backups) - w.maxBackups; extra > 0 {
		for _, stale := range backups[:extra] {
			_ = os.Remove(stale)
		}
		backups = backups[extra:]
	}

	if w.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.maxAge)
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(backup)
		}
	}
}
