package sensors

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"seriallinker/internal/logging"
)

// GPIOConfig describes the sysfs pin wiring.
type GPIOConfig struct {
	Root       string
	ActiveLow  bool
	BoardPin   int
	StartPin   int
	EnablePin  int
	CurtainPin int
}

// GPIO reads exported sysfs GPIO value files.
type GPIO struct {
	cfg    GPIOConfig
	logger *slog.Logger
	start  Edge

	mu     sync.Mutex
	faults map[int]error
}

// NewGPIO constructs a sysfs port. Pins are expected to be exported already.
func NewGPIO(cfg GPIOConfig, logger *slog.Logger) *GPIO {
	if strings.TrimSpace(cfg.Root) == "" {
		cfg.Root = "/sys/class/gpio"
	}
	return &GPIO{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "sensors"),
		faults: make(map[int]error),
	}
}

func (g *GPIO) BoardPresent() bool { return g.active("board", g.cfg.BoardPin) }

// StartPressed reports a rising edge on the start pin. A failed read reports
// no press and leaves the remembered level alone, so a button held across a
// read fault is not seen as pressed twice.
func (g *GPIO) StartPressed() bool {
	level, err := g.read("start", g.cfg.StartPin)
	if err != nil {
		return false
	}
	g.start.Observe(level)
	return g.start.Take()
}

func (g *GPIO) Enabled() bool { return g.active("enable", g.cfg.EnablePin) }

func (g *GPIO) CurtainClear() bool { return g.active("curtain", g.cfg.CurtainPin) }

// Health reports the lowest faulted pin, if any.
func (g *GPIO) Health() Health {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.faults) == 0 {
		return Health{Name: "gpio inputs", Ready: true}
	}
	pins := make([]int, 0, len(g.faults))
	for pin := range g.faults {
		pins = append(pins, pin)
	}
	slices.Sort(pins)
	detail := fmt.Sprintf("pin %d: %v", pins[0], g.faults[pins[0]])
	if len(pins) > 1 {
		detail += fmt.Sprintf(" (+%d more)", len(pins)-1)
	}
	return Health{Name: "gpio inputs", Ready: false, Detail: detail}
}

// active fails closed: a pin that cannot be read is not active.
func (g *GPIO) active(name string, pin int) bool {
	level, err := g.read(name, pin)
	return err == nil && level
}

func (g *GPIO) read(name string, pin int) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(g.cfg.Root, fmt.Sprintf("gpio%d", pin), "value"))
	if err == nil {
		switch strings.TrimSpace(string(raw)) {
		case "0":
			g.recovered(name, pin)
			return g.cfg.ActiveLow, nil
		case "1":
			g.recovered(name, pin)
			return !g.cfg.ActiveLow, nil
		default:
			err = fmt.Errorf("unexpected value %q", strings.TrimSpace(string(raw)))
		}
	}
	g.faulted(name, pin, err)
	return false, err
}

func (g *GPIO) faulted(name string, pin int, err error) {
	g.mu.Lock()
	_, already := g.faults[pin]
	g.faults[pin] = err
	g.mu.Unlock()
	if already {
		return
	}
	logging.WarnWithContext(g.logger, "input read failed; treating as not ready", "sensor_read_failed",
		logging.String("input", name),
		logging.Int("pin", pin),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the pin is exported and wired"),
		logging.String(logging.FieldImpact, "cycles cannot start until the input recovers"),
	)
}

func (g *GPIO) recovered(name string, pin int) {
	g.mu.Lock()
	_, was := g.faults[pin]
	delete(g.faults, pin)
	g.mu.Unlock()
	if was {
		g.logger.Info("input recovered", logging.String("input", name), logging.Int("pin", pin), logging.String(logging.FieldEventType, "sensor_recovered"))
	}
}
