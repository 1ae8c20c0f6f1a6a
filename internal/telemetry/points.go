package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementCycle = "link_cycle"
	measurementState = "station_state"
)

// CycleMetrics describes one finished work cycle.
type CycleMetrics struct {
	Board       string
	DoubleSided bool
	Success     bool
	LeftOK      bool
	RightOK     bool
	LinkCalled  bool
	Capture     time.Duration
	Decode      time.Duration
	Link        time.Duration
	Total       time.Duration
	Finished    time.Time
}

func cyclePoint(station string, m CycleMetrics) *write.Point {
	result := "fail"
	if m.Success {
		result = "pass"
	}
	sides := "single"
	if m.DoubleSided {
		sides = "dual"
	}
	ts := m.Finished
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurementCycle,
		map[string]string{
			"station": station,
			"board":   m.Board,
			"result":  result,
			"sides":   sides,
		},
		map[string]interface{}{
			"success":     m.Success,
			"left_ok":     m.LeftOK,
			"right_ok":    m.RightOK,
			"link_called": m.LinkCalled,
			"capture_ms":  m.Capture.Milliseconds(),
			"decode_ms":   m.Decode.Milliseconds(),
			"link_ms":     m.Link.Milliseconds(),
			"total_ms":    m.Total.Milliseconds(),
		},
		ts,
	)
}

func statePoint(station, from, to string, ts time.Time) *write.Point {
	return write.NewPoint(measurementState,
		map[string]string{"station": station, "state": to},
		map[string]interface{}{"from": from, "value": 1},
		ts,
	)
}
