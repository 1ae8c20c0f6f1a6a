package station

import (
	"context"
	"log/slog"
	"time"

	"seriallinker/internal/capture"
	"seriallinker/internal/decode"
	"seriallinker/internal/logging"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/services"
	"seriallinker/internal/services/mes"
	"seriallinker/internal/telemetry"
)

const (
	// msgLinkFault is shown when the link client fails in a way it did not normalize itself.
	msgLinkFault = "Link service error"
	// msgCycleFault is shown when the cycle itself panicked outside a guarded step.
	msgCycleFault = "Cycle error"
)

type cycleRequest struct {
	id      string
	session Session
	board   capture.Board
	started time.Time
}

// CycleSummary describes one finished work cycle.
type CycleSummary struct {
	ID          string    `json:"id"`
	Operator    string    `json:"operator"`
	OperatorID  string    `json:"operator_id"`
	Board       string    `json:"board"`
	DoubleSided bool      `json:"double_sided"`
	LeftCode    string    `json:"left_code,omitempty"`
	RightCode   string    `json:"right_code,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	LinkCalled  bool      `json:"link_called"`
	LogPath     string    `json:"log_path,omitempty"`
	LeftBackup  string    `json:"left_backup,omitempty"`
	RightBackup string    `json:"right_backup,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration is the wall time of the cycle.
func (s CycleSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (c *Controller) runCycle(ctx context.Context, req cycleRequest) {
	defer c.cycles.Done()
	c.done <- completion{summary: c.guardedWork(ctx, req)}
}

// guardedWork turns a panic anywhere in the cycle into a failed summary so the
// loop always receives exactly one completion.
func (c *Controller) guardedWork(ctx context.Context, req cycleRequest) (summary CycleSummary) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(c.logger, "work cycle panicked", "cycle_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldCycleID, req.id),
				logging.String(logging.FieldErrorHint, "inspect the cycle adapters"),
				logging.String(logging.FieldImpact, "cycle reported as failed; the result may not be logged"),
			)
			summary = CycleSummary{
				ID:          req.id,
				Operator:    operatorLabel(req.session),
				OperatorID:  req.session.OperatorID,
				Board:       req.board.Name,
				DoubleSided: req.board.DoubleSided,
				Message:     msgCycleFault,
				StartedAt:   req.started,
				FinishedAt:  c.now(),
			}
		}
	}()
	return c.work(ctx, req)
}

// operatorLabel is the name written to result logs.
func operatorLabel(s Session) string {
	if s.OperatorName != "" {
		return s.OperatorName
	}
	return s.OperatorID
}

// work runs capture, decode, link and record in order. Failures in the first
// three steps degrade to "no code" or a failed link outcome; the record step
// always runs.
func (c *Controller) work(ctx context.Context, req cycleRequest) CycleSummary {
	ctx = services.WithCycleID(ctx, req.id)
	ctx = services.WithBoard(ctx, req.board.Name)
	ctx = services.WithOperator(ctx, req.session.OperatorID)
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("work cycle started",
		logging.String(logging.FieldEventType, "cycle_started"),
		logging.Bool("double_sided", req.board.DoubleSided),
	)

	captureStart := c.now()
	shots := c.capture(ctx, logger, req.board)
	decodeStart := c.now()
	codes := decode.DecodeSides(ctx, c.decoder, shots.Left, shots.Right)
	linkStart := c.now()
	outcome, called := c.link(ctx, logger, req, codes)
	linkEnd := c.now()

	written, err := c.recorder.Record(ctx, resultlog.Cycle{
		CycleID:   req.id,
		Operator:  operatorLabel(req.session),
		Board:     req.board.Name,
		LeftPath:  shots.Left,
		RightPath: shots.Right,
		LeftCode:  codes.Left,
		RightCode: codes.Right,
		LeftOK:    codes.LeftOK,
		RightOK:   codes.RightOK,
		Success:   outcome.Success,
		Message:   outcome.Message,
	})
	if err != nil {
		logging.WarnWithContext(logger, "cycle record incomplete", "cycle_record_incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.result_dir and paths.failed_image_dir"),
			logging.String(logging.FieldImpact, "cycle result missing from one or more logs"),
		)
	}

	finished := c.now()
	c.telemetry.CycleCompleted(telemetry.CycleMetrics{
		Board:       req.board.Name,
		DoubleSided: req.board.DoubleSided,
		Success:     outcome.Success,
		LeftOK:      codes.LeftOK,
		RightOK:     codes.RightOK,
		LinkCalled:  called,
		Capture:     decodeStart.Sub(captureStart),
		Decode:      linkStart.Sub(decodeStart),
		Link:        linkEnd.Sub(linkStart),
		Total:       finished.Sub(req.started),
		Finished:    finished,
	})

	summary := CycleSummary{
		ID:          req.id,
		Operator:    operatorLabel(req.session),
		OperatorID:  req.session.OperatorID,
		Board:       req.board.Name,
		DoubleSided: req.board.DoubleSided,
		LeftCode:    codes.Left,
		RightCode:   codes.Right,
		Success:     outcome.Success,
		Message:     outcome.Message,
		LinkCalled:  called,
		LogPath:     written.LogPath,
		LeftBackup:  written.LeftBackup,
		RightBackup: written.RightBackup,
		StartedAt:   req.started,
		FinishedAt:  finished,
	}
	logger.Info("work cycle finished",
		logging.String(logging.FieldEventType, "cycle_finished"),
		logging.Bool("success", summary.Success),
		logging.String("message", summary.Message),
		logging.Duration("duration", summary.Duration()),
	)
	return summary
}

// capture returns no artifacts when the actuator fails.
func (c *Controller) capture(ctx context.Context, logger *slog.Logger, board capture.Board) (shots capture.Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "capture actuator panicked", "capture_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the capture driver"),
				logging.String(logging.FieldImpact, "cycle continues without images"),
			)
			shots = capture.Result{}
		}
	}()

	res, err := c.actuator.Capture(ctx, board)
	if err != nil {
		if !res.Empty() {
			logger.Debug("discarding partial capture", logging.String("left", res.Left), logging.String("right", res.Right))
		}
		logging.WarnWithContext(logger, "capture failed; continuing without images", "capture_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the manipulator and camera"),
			logging.String(logging.FieldImpact, "cycle fails with no code decoded"),
		)
		return capture.Result{}
	}
	if !board.DoubleSided {
		res.Right = ""
	}
	return res
}

// link calls the remote service only when every required code is present.
func (c *Controller) link(ctx context.Context, logger *slog.Logger, req cycleRequest, codes decode.Outcome) (out mes.Outcome, called bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "link client panicked", "link_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the MES client"),
				logging.String(logging.FieldImpact, "cycle recorded as failed"),
			)
			out = mes.Outcome{Success: false, Message: msgLinkFault}
			called = true
		}
	}()

	operator := req.session.OperatorID
	switch {
	case req.board.DoubleSided && codes.LeftOK && codes.RightOK:
		return c.linker.LinkPair(ctx, operator, codes.Left, codes.Right), true
	case !req.board.DoubleSided && codes.LeftOK:
		return c.linker.LinkSingle(ctx, operator, codes.Left), true
	}

	logger.Info("remote call skipped; code missing",
		logging.String(logging.FieldEventType, "link_skipped"),
		logging.Bool("left_ok", codes.LeftOK),
		logging.Bool("right_ok", codes.RightOK),
	)
	return mes.Outcome{Success: false, Message: mes.MsgNoCode}, false
}
