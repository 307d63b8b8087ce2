//go:build !linux

package serial

// discoverCandidates has no non-Linux implementation: VID:PID enumeration
// relies on /sys/class/tty, which only exists on Linux. Callers must
// configure the port path explicitly on other platforms.
func discoverCandidates() []string { return nil }
