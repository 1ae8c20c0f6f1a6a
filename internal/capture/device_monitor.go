package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"seriallinker/internal/logging"
)

// DeviceMonitor follows udev add/remove events for the capture camera so the
// status surface can report a disconnected camera before a cycle fails on it.
type DeviceMonitor struct {
	subsystem string
	name      string
	sysRoot   string
	logger    *slog.Logger
	onChange  func(present bool)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	present bool
	known   bool
}

// NewDeviceMonitor returns nil when no device is configured.
func NewDeviceMonitor(subsystem, name string, logger *slog.Logger, onChange func(present bool)) *DeviceMonitor {
	subsystem = strings.TrimSpace(subsystem)
	name = strings.TrimSpace(name)
	if subsystem == "" || name == "" {
		return nil
	}
	return &DeviceMonitor{
		subsystem: subsystem,
		name:      name,
		sysRoot:   "/sys/class",
		logger:    logging.NewComponentLogger(logger, "device-monitor"),
		onChange:  onChange,
	}
}

// Start probes the current presence and begins listening for hotplug events.
// Netlink failures are logged and leave the monitor in probe-only mode.
func (m *DeviceMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	_, err := os.Stat(filepath.Join(m.sysRoot, m.subsystem, m.name))
	m.present = err == nil
	m.known = true

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "netlink connect failed; camera hotplug not tracked", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "camera disconnects surface only as capture failures"),
		)
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"),
		logging.String("subsystem", m.subsystem),
		logging.String("device", m.name),
		logging.Bool("present", m.present),
	)
	return nil
}

// Stop shuts down the netlink listener.
func (m *DeviceMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Present reports the last known presence and whether it is known at all.
func (m *DeviceMonitor) Present() (present bool, known bool) {
	if m == nil {
		return false, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present, m.known
}

func (m *DeviceMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case evt := <-queue:
			m.handleEvent(evt)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "camera presence may be stale"),
			)
		}
	}
}

func (m *DeviceMonitor) matcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": m.subsystem},
	})
	return rules
}

func (m *DeviceMonitor) handleEvent(evt netlink.UEvent) {
	if deviceName(evt) != m.name {
		return
	}
	var present bool
	switch evt.Action {
	case netlink.ADD:
		present = true
	case netlink.REMOVE:
		present = false
	default:
		return
	}

	m.mu.Lock()
	changed := !m.known || m.present != present
	m.present = present
	m.known = true
	m.mu.Unlock()
	if !changed {
		return
	}

	if present {
		m.logger.Info("capture device connected", logging.String("device", m.name), logging.String(logging.FieldEventType, "device_connected"))
	} else {
		logging.WarnWithContext(m.logger, "capture device removed", "device_removed",
			logging.String("device", m.name),
			logging.String(logging.FieldErrorHint, "reconnect the camera cable"),
			logging.String(logging.FieldImpact, "captures fail until the device returns"),
		)
	}
	if m.onChange != nil {
		m.onChange(present)
	}
}

func deviceName(evt netlink.UEvent) string {
	if name := evt.Env["DEVNAME"]; name != "" {
		return filepath.Base(name)
	}
	if path := evt.Env["DEVPATH"]; path != "" {
		return filepath.Base(path)
	}
	return filepath.Base(evt.KObj)
}
