package resultlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DailyLog appends entries to one CSV file per calendar day. The file is
// opened for each write so external readers and log rotation never hold it.
type DailyLog struct {
	dir string
	mu  sync.Mutex
}

// NewDailyLog writes under dir.
func NewDailyLog(dir string) *DailyLog {
	return &DailyLog{dir: dir}
}

// PathFor returns the file an entry stamped at day is written to.
func (l *DailyLog) PathFor(e Entry) string {
	return filepath.Join(l.dir, fmt.Sprintf("link_log_%s.csv", e.Timestamp.Format("2006-01-02")))
}

// Append writes one row, creating the file and its header when needed.
func (l *DailyLog) Append(e Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	path := l.PathFor(e)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open daily log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return "", fmt.Errorf("stat daily log: %w", err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			file.Close()
			return "", fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(e.record()); err != nil {
		file.Close()
		return "", fmt.Errorf("write entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return "", fmt.Errorf("flush entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close daily log: %w", err)
	}
	return path, nil
}
