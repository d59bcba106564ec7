package serialio

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Regular expressions for communication-capable serial devices
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
	regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
}

// ListPorts returns the available serial ports on the system, filtered to
// real character devices and excluding virtual terminals
func ListPorts() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if !matchesPortName(entry.Name()) {
			continue
		}
		fullPath := filepath.Join("/dev", entry.Name())
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// FirstPort returns the first available serial port, mirroring the
// "open any attached device" behavior used when no device is configured
func FirstPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrDeviceNotFound
	}
	return ports[0], nil
}

func matchesPortName(name string) bool {
	for _, pattern := range portPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
