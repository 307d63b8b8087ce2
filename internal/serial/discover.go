package serial

import (
	"time"
)

// AllowedDevices lists the VID:PID pairs (as "VVVV:PPPP", uppercase hex)
// recognised as field-bus interfaces during autodiscovery.
var AllowedDevices = []string{"10CF:0B1B", "10CF:0516", "10CF:0517", "10CF:0518"}

func allowed(tag string) bool {
	for _, d := range AllowedDevices {
		if d == tag {
			return true
		}
	}
	return false
}

// probeTimeout bounds the open-and-close accessibility check done against
// each autodiscovery candidate.
const probeTimeout = 200 * time.Millisecond

// SelectPort resolves the device path to open: if autodiscover is set, it
// enumerates attached devices filtered by AllowedDevices, opens and closes
// each candidate to verify accessibility, and returns the first that
// succeeds. It falls back to configured when autodiscovery finds nothing
// (or is disabled). ErrNoPort is returned when neither yields a port.
func SelectPort(configured string, autodiscover bool) (string, error) {
	if autodiscover {
		for _, candidate := range discoverCandidates() {
			if probeOpen(candidate) {
				return candidate, nil
			}
		}
	}
	if configured != "" {
		return configured, nil
	}
	return "", ErrNoPort
}

func probeOpen(path string) bool {
	p, err := Open(path, probeTimeout)
	if err != nil {
		return false
	}
	_ = p.Close()
	return true
}
