package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seriallinker/internal/capture"
	"seriallinker/internal/config"
	"seriallinker/internal/decode"
	"seriallinker/internal/logging"
	"seriallinker/internal/notifications"
	"seriallinker/internal/resultlog"
	"seriallinker/internal/sensors"
	"seriallinker/internal/services/mes"
	"seriallinker/internal/telemetry"
	"seriallinker/internal/textutil"
)

const notifyTimeout = 15 * time.Second

var (
	// ErrNotRunning is returned by commands when the control loop is not running.
	ErrNotRunning = errors.New("station loop not running")
	// ErrBusy is returned when a command would interrupt an in-flight work cycle.
	ErrBusy = errors.New("work cycle in progress")
	// ErrLoggedIn is returned by Login when an operator is already logged in.
	ErrLoggedIn = errors.New("operator already logged in")
	// ErrLoggedOut is returned by commands that need an operator.
	ErrLoggedOut = errors.New("no operator logged in")
	// ErrUnknownBoard is returned by SelectBoard for names missing from the board table.
	ErrUnknownBoard = errors.New("unknown board type")
)

// Authenticator verifies operator credentials.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (mes.Operator, error)
}

// Recorder persists finished work cycles.
type Recorder interface {
	Record(ctx context.Context, c resultlog.Cycle) (resultlog.Written, error)
}

// DisplaySink receives display changes and cycle results. Implementations must not block.
type DisplaySink interface {
	ShowDisplay(d Display)
	CycleFinished(s CycleSummary)
}

// Dependencies are the collaborators the controller drives. Sensors, Actuator,
// Decoder, Linker and Recorder are required.
type Dependencies struct {
	Sensors   sensors.Port
	Actuator  capture.Actuator
	Decoder   decode.Decoder
	Linker    mes.Linker
	Auth      Authenticator
	Recorder  Recorder
	Notifier  notifications.Service
	Telemetry telemetry.Sink
	Display   DisplaySink
}

// Status is a point-in-time view of the controller.
type Status struct {
	Running     bool             `json:"running"`
	Station     string           `json:"station"`
	Mode        string           `json:"mode"`
	State       State            `json:"state"`
	Since       time.Time        `json:"since"`
	Display     Display          `json:"display"`
	Session     *Session         `json:"session,omitempty"`
	Board       string           `json:"board"`
	Inputs      sensors.Snapshot `json:"inputs"`
	InputHealth *sensors.Health  `json:"input_health,omitempty"`
	InFlight    bool             `json:"in_flight"`
	Started     int              `json:"cycles_started"`
	Completed   int              `json:"cycles_completed"`
	LastCycle   *CycleSummary    `json:"last_cycle,omitempty"`
}

// BoardInfo describes one selectable board type.
type BoardInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	DoubleSided bool   `json:"double_sided"`
}

type command struct {
	name  string
	apply func(ctx context.Context) error
	reply chan error
}

type completion struct {
	summary CycleSummary
}

// Controller owns the station state machine.
type Controller struct {
	station  string
	mode     string
	boards   map[string]config.Board
	interval time.Duration

	sensors   sensors.Port
	actuator  capture.Actuator
	decoder   decode.Decoder
	linker    mes.Linker
	auth      Authenticator
	recorder  Recorder
	notifier  notifications.Service
	telemetry telemetry.Sink
	display   DisplaySink

	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	commands chan command
	done     chan completion
	cycles   sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	exited    chan struct{}
	state     State
	since     time.Time
	view      Display
	session   Session
	board     string
	inputs    sensors.Snapshot
	health    *sensors.Health
	inFlight  bool
	started   int
	completed int
	last      *CycleSummary
}

// New constructs a controller in the LoggedOut state with the default board selected.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("station: config required")
	}
	switch {
	case deps.Sensors == nil:
		return nil, errors.New("station: sensor port required")
	case deps.Actuator == nil:
		return nil, errors.New("station: capture actuator required")
	case deps.Decoder == nil:
		return nil, errors.New("station: decoder required")
	case deps.Linker == nil:
		return nil, errors.New("station: link client required")
	case deps.Recorder == nil:
		return nil, errors.New("station: recorder required")
	}
	if _, ok := cfg.Board(cfg.Station.DefaultBoard); !ok {
		return nil, fmt.Errorf("station: default board %q not configured", cfg.Station.DefaultBoard)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(&config.Config{})
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	boards := make(map[string]config.Board, len(cfg.Boards))
	for name, b := range cfg.Boards {
		boards[name] = b
	}

	c := &Controller{
		station:   cfg.Station.Name,
		mode:      cfg.Station.Mode,
		boards:    boards,
		interval:  interval,
		sensors:   deps.Sensors,
		actuator:  deps.Actuator,
		decoder:   deps.Decoder,
		linker:    deps.Linker,
		auth:      deps.Auth,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		telemetry: deps.Telemetry,
		display:   deps.Display,
		logger:    logging.NewComponentLogger(logger, "station"),
		now:       time.Now,
		newID:     uuid.NewString,
		commands:  make(chan command),
		done:      make(chan completion, 1),
		state:     StateLoggedOut,
		board:     cfg.Station.DefaultBoard,
	}
	c.since = c.now()
	c.view = DisplayFor(StateLoggedOut, "")
	return c, nil
}

// Run drives the poll loop until ctx is cancelled. An in-flight work cycle is
// allowed to finish before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("station loop already running")
	}
	c.running = true
	exited := make(chan struct{})
	c.exited = exited
	view := c.view
	c.mu.Unlock()

	defer func() {
		c.cycles.Wait()
		select {
		case res := <-c.done:
			c.complete(ctx, res)
		default:
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(exited)
		c.logger.Info("station loop stopped", logging.String(logging.FieldEventType, "station_stopped"))
	}()

	c.logger.Info("station loop started",
		logging.String(logging.FieldEventType, "station_started"),
		logging.String("station", c.station),
		logging.String("mode", c.mode),
		logging.Duration("poll_interval", c.interval),
	)
	if c.display != nil {
		c.display.ShowDisplay(view)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.commands:
			cmd.reply <- c.apply(ctx, cmd)
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one poll: deliver a finished cycle, sample the inputs, advance the FSM.
func (c *Controller) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(c.logger, "poll tick panicked", "tick_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the sensor driver"),
				logging.String(logging.FieldImpact, "tick skipped; polling continues"),
			)
		}
	}()

	select {
	case res := <-c.done:
		c.complete(ctx, res)
	default:
	}

	snap := sensors.Read(c.sensors)
	c.checkHealth(ctx)
	c.step(ctx, snap)
}

func (c *Controller) step(ctx context.Context, snap sensors.Snapshot) {
	c.mu.Lock()
	c.inputs = snap
	state := c.state
	c.mu.Unlock()

	switch state {
	case StateWaitRemove:
		if !snap.BoardPresent {
			c.transition(ctx, StateWaitBoard, "")
		}
	case StateWaitBoard:
		if snap.BoardPresent {
			c.transition(ctx, StateWaitStart, "")
		}
	case StateWaitStart:
		if !snap.BoardPresent {
			c.transition(ctx, StateWaitBoard, "")
			return
		}
		if !snap.StartPressed {
			return
		}
		if snap.Ready() {
			c.startCycle(ctx)
			return
		}
		c.interlockOpen(snap)
	case StatePass, StateFail:
		if !snap.BoardPresent {
			c.transition(ctx, StateWaitBoard, "")
		}
	}
}

// interlockOpen explains a start press that was refused.
func (c *Controller) interlockOpen(snap sensors.Snapshot) {
	detail := "Light curtain blocked"
	if !snap.Enabled {
		detail = "Enable switch off"
	}
	c.mu.Lock()
	c.view = DisplayFor(StateWaitStart, detail)
	view := c.view
	c.mu.Unlock()
	logging.WarnWithContext(c.logger, "start ignored; interlock open", "interlock_open",
		logging.Bool("enabled", snap.Enabled),
		logging.Bool("curtain_clear", snap.CurtainClear),
		logging.String(logging.FieldErrorHint, detail),
		logging.String(logging.FieldImpact, "press start again once the interlock is closed"),
	)
	if c.display != nil {
		c.display.ShowDisplay(view)
	}
}

func (c *Controller) transition(ctx context.Context, next State, detail string) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.since = c.now()
	c.view = DisplayFor(next, detail)
	view := c.view
	c.mu.Unlock()

	c.logger.Info("station state changed",
		logging.String(logging.FieldEventType, "state_changed"),
		logging.String("from", string(prev)),
		logging.String(logging.FieldState, string(next)),
	)
	c.telemetry.StateChanged(string(prev), string(next))
	if c.display != nil {
		c.display.ShowDisplay(view)
	}
}

func (c *Controller) startCycle(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	c.inFlight = true
	c.started++
	c.mu.Unlock()

	req := cycleRequest{
		id:      c.newID(),
		session: session,
		board:   capture.BoardFromConfig(session.BoardType, c.boards[session.BoardType]),
		started: c.now(),
	}
	c.transition(ctx, StateLinking, "")

	c.cycles.Add(1)
	go c.runCycle(context.WithoutCancel(ctx), req)
}

func (c *Controller) complete(ctx context.Context, res completion) {
	summary := res.summary
	c.mu.Lock()
	c.inFlight = false
	c.completed++
	c.last = &summary
	c.mu.Unlock()

	next := StateFail
	if summary.Success {
		next = StatePass
	}
	c.transition(ctx, next, summary.Message)
	if c.display != nil {
		c.display.CycleFinished(summary)
	}
	if !summary.Success {
		c.notify(ctx, "cycle failure", func(nctx context.Context) error {
			return c.notifier.NotifyCycleFailed(nctx, c.station, summary.Board, summary.Message)
		})
	}
}

func (c *Controller) checkHealth(ctx context.Context) {
	reporter, ok := c.sensors.(sensors.HealthReporter)
	if !ok {
		return
	}
	h := reporter.Health()
	c.mu.Lock()
	prev := c.health
	c.health = &h
	c.mu.Unlock()

	if prev == nil || prev.Ready == h.Ready {
		if prev == nil && !h.Ready {
			c.sensorFault(ctx, h)
		}
		return
	}
	if h.Ready {
		c.logger.Info("sensor inputs recovered",
			logging.String(logging.FieldEventType, "sensor_recovered"),
			logging.String("source", h.Name),
		)
		return
	}
	c.sensorFault(ctx, h)
}

func (c *Controller) sensorFault(ctx context.Context, h sensors.Health) {
	logging.WarnWithContext(c.logger, "sensor inputs degraded; reading as not ready", "sensor_fault",
		logging.String("source", h.Name),
		logging.String("detail", h.Detail),
		logging.String(logging.FieldErrorHint, "check sensor wiring or the input bus"),
		logging.String(logging.FieldImpact, "linking blocked until inputs recover"),
		logging.Alert("sensor_fault"),
	)
	c.notify(ctx, "sensor fault", func(nctx context.Context) error {
		return c.notifier.NotifySensorFault(nctx, c.station, h.Name, h.Detail)
	})
}

// notify sends off the poll loop so a slow push service never delays a tick.
func (c *Controller) notify(ctx context.Context, label string, send func(context.Context) error) {
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := send(nctx); err != nil {
			c.logger.Debug("notification failed", logging.String("notification", label), logging.Error(err))
		}
	}()
}

// Login verifies credentials and starts a session for the selected board.
func (c *Controller) Login(ctx context.Context, username, password string) (Session, error) {
	if c.auth == nil {
		return Session{}, errors.New("station: no login service configured")
	}
	if st := c.Status(); st.State != StateLoggedOut {
		return Session{}, ErrLoggedIn
	}
	op, err := c.auth.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	var session Session
	err = c.submit(ctx, "login", func(ctx context.Context) error {
		if c.state != StateLoggedOut {
			return ErrLoggedIn
		}
		board := c.boards[c.board]
		session = Session{
			OperatorID:   op.ID,
			OperatorName: textutil.DisplayName(textutil.OrDefault(op.Name, username)),
			BoardType:    c.board,
			BoardLabel:   board.Label,
			DoubleSided:  board.DoubleSided(),
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
		c.logger.Info("operator logged in",
			logging.String(logging.FieldEventType, "operator_login"),
			logging.String(logging.FieldOperator, session.OperatorID),
			logging.String(logging.FieldBoard, session.BoardType),
		)
		c.transition(ctx, StateWaitRemove, "")
		return nil
	})
	return session, err
}

// Logout ends the session. It is refused while a work cycle is in flight.
func (c *Controller) Logout(ctx context.Context) error {
	return c.submit(ctx, "logout", func(ctx context.Context) error {
		switch c.state {
		case StateLoggedOut:
			return ErrLoggedOut
		case StateLinking:
			return ErrBusy
		}
		c.mu.Lock()
		operator := c.session.OperatorID
		c.session = Session{}
		c.mu.Unlock()
		c.logger.Info("operator logged out",
			logging.String(logging.FieldEventType, "operator_logout"),
			logging.String(logging.FieldOperator, operator),
		)
		c.transition(ctx, StateLoggedOut, "")
		return nil
	})
}

// SelectBoard switches the board type used by subsequent cycles.
func (c *Controller) SelectBoard(ctx context.Context, name string) (BoardInfo, error) {
	var info BoardInfo
	err := c.submit(ctx, "select_board", func(ctx context.Context) error {
		board, ok := c.boards[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownBoard, name)
		}
		if c.state == StateLinking {
			return ErrBusy
		}
		info = BoardInfo{Name: name, Label: board.Label, DoubleSided: board.DoubleSided()}
		c.mu.Lock()
		c.board = name
		if c.state != StateLoggedOut {
			c.session.BoardType = name
			c.session.BoardLabel = board.Label
			c.session.DoubleSided = board.DoubleSided()
		}
		c.mu.Unlock()
		c.logger.Info("board type selected",
			logging.String(logging.FieldEventType, "board_selected"),
			logging.String(logging.FieldBoard, name),
			logging.Bool("double_sided", info.DoubleSided),
		)
		return nil
	})
	return info, err
}

// Boards lists the board table sorted by name.
func (c *Controller) Boards() []BoardInfo {
	out := make([]BoardInfo, 0, len(c.boards))
	for name, b := range c.boards {
		out = append(out, BoardInfo{Name: name, Label: b.Label, DoubleSided: b.DoubleSided()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// submit runs fn on the poll loop goroutine and waits for its result.
func (c *Controller) submit(ctx context.Context, name string, fn func(context.Context) error) error {
	c.mu.RLock()
	running := c.running
	exited := c.exited
	c.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	cmd := command{name: name, apply: fn, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-exited:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) apply(ctx context.Context, cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: internal error", cmd.name)
			logging.ErrorWithContext(c.logger, "station command panicked", "command_panic",
				logging.String("command", cmd.name),
				logging.Any("panic", r),
			)
		}
	}()
	return cmd.apply(ctx)
}

// Status returns a copy of the controller's current view.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		Running:   c.running,
		Station:   c.station,
		Mode:      c.mode,
		State:     c.state,
		Since:     c.since,
		Display:   c.view,
		Board:     c.board,
		Inputs:    c.inputs,
		InFlight:  c.inFlight,
		Started:   c.started,
		Completed: c.completed,
	}
	if c.state != StateLoggedOut {
		session := c.session
		st.Session = &session
	}
	if c.health != nil {
		h := *c.health
		st.InputHealth = &h
	}
	if c.last != nil {
		last := *c.last
		st.LastCycle = &last
	}
	return st
}
