//go:build linux

package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// discoverCandidates enumerates /sys/class/tty entries backed by a USB
// device and returns /dev paths whose VID:PID appears in AllowedDevices,
// sorted for deterministic probing order.
func discoverCandidates() []string {
	entries, err := os.ReadDir("/sys/class/tty")
	if err != nil {
		return nil
	}
	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "ttyUSB") && !strings.HasPrefix(name, "ttyACM") {
			continue
		}
		base := filepath.Join("/sys/class/tty", name, "device", "..")
		vid, verr := readHexID(filepath.Join(base, "idVendor"))
		pid, perr := readHexID(filepath.Join(base, "idProduct"))
		if verr != nil || perr != nil {
			continue
		}
		tag := fmt.Sprintf("%04X:%04X", vid, pid)
		if allowed(tag) {
			candidates = append(candidates, filepath.Join("/dev", name))
		}
	}
	sort.Strings(candidates)
	return candidates
}

func readHexID(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 16, 32)
}
