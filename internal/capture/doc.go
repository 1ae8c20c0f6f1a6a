// Package capture runs one manipulator capture cycle and returns the image
// paths it produced.
//
// The motion and camera work itself is external: the Command actuator shells
// out to a helper that moves the arm, grabs frames, and prints the saved paths.
// Results are validated (file present, plausible size) and retried before they
// reach the caller. The Simulated actuator renders synthetic code images so the
// whole station can be exercised without hardware. DeviceMonitor tracks the
// camera's presence through udev hotplug events.
package capture
