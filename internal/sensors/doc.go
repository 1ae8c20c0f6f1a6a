// Package sensors reads the four station inputs: board present, start button,
// enable toggle, and light curtain.
//
// Every Port implementation answers immediately and fails closed: a read that
// cannot be completed reports the not-ready value so the control loop never
// starts a cycle on a faulty input. The start button is edge-latched, so one
// physical press is reported exactly once no matter how long it is held.
//
// Three implementations exist: GPIO (sysfs value files), MQTT (an input
// gateway publishing pin levels), and Simulated (toggled from the CLI).
package sensors
