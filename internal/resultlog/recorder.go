package resultlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"seriallinker/internal/logging"
)

// Cycle is everything a finished work cycle hands to the recorder.
type Cycle struct {
	CycleID   string
	Operator  string
	Board     string
	LeftPath  string
	RightPath string
	LeftCode  string
	RightCode string
	LeftOK    bool
	RightOK   bool
	Success   bool
	Message   string
}

// Written describes what Record persisted.
type Written struct {
	Entry       Entry  `json:"entry"`
	LogPath     string `json:"log_path,omitempty"`
	LeftBackup  string `json:"left_backup,omitempty"`
	RightBackup string `json:"right_backup,omitempty"`
}

// Recorder writes the daily log row, failure backups, and history row for a cycle.
type Recorder struct {
	log     *DailyLog
	backup  *Backup
	history *History
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder wires the stores. history may be nil.
func NewRecorder(log *DailyLog, backup *Backup, history *History, logger *slog.Logger) *Recorder {
	return &Recorder{
		log:     log,
		backup:  backup,
		history: history,
		logger:  logging.NewComponentLogger(logger, "resultlog"),
		now:     time.Now,
	}
}

// History returns the history store, or nil when none is configured.
func (r *Recorder) History() *History {
	return r.history
}

// Record persists one cycle. Every store is attempted even if an earlier one
// failed; the joined error is returned after logging each failure.
func (r *Recorder) Record(ctx context.Context, c Cycle) (Written, error) {
	logger := logging.WithContext(ctx, r.logger)
	entry := NewEntry(r.now(), c.Operator, c.Board, c.LeftCode, c.RightCode, c.Success, c.Message)
	entry.CycleID = c.CycleID
	out := Written{Entry: entry}
	var errs []error

	path, err := r.log.Append(entry)
	if err != nil {
		errs = append(errs, err)
		logging.ErrorWithContext(logger, "daily log write failed", "result_log_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the result directory"),
			logging.String(logging.FieldImpact, "cycle missing from the daily log"),
		)
	}
	out.LogPath = path

	if !c.LeftOK && c.LeftPath != "" {
		out.LeftBackup, err = r.saveBackup(logger, SideLeft, c.LeftPath)
		errs = append(errs, err)
	}
	if !c.RightOK && c.RightPath != "" {
		out.RightBackup, err = r.saveBackup(logger, SideRight, c.RightPath)
		errs = append(errs, err)
	}

	if r.history != nil {
		if _, err := r.history.Insert(ctx, entry, out.LeftBackup, out.RightBackup); err != nil {
			errs = append(errs, err)
			logging.WarnWithContext(logger, "history insert failed", "history_insert_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history database"),
				logging.String(logging.FieldImpact, "cycle missing from linker history"),
			)
		}
	}

	logger.Info("cycle recorded",
		logging.String(logging.FieldEventType, "cycle_recorded"),
		logging.String("result", entry.Result),
		logging.String("left_sn", entry.LeftSN),
		logging.String("right_sn", entry.RightSN),
		logging.String("message", entry.Message),
	)
	return out, errors.Join(errs...)
}

func (r *Recorder) saveBackup(logger *slog.Logger, side Side, src string) (string, error) {
	dst, err := r.backup.Save(side, src)
	if err != nil {
		logging.WarnWithContext(logger, "failure image backup failed", "backup_failed",
			logging.String(logging.FieldSide, string(side)),
			logging.String("source", src),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the failed image directory"),
			logging.String(logging.FieldImpact, "image not kept for audit"),
		)
		return "", err
	}
	logger.Info("failure image kept", logging.String(logging.FieldSide, string(side)), logging.String("path", dst))
	return dst, nil
}
