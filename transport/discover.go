package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Discover returns the bus address of the current user's IBus daemon.
//
// If IBUS_ADDRESS is set in the environment, its value is used
// directly. Otherwise the address is read from the socket file the
// daemon writes at startup, whose name is derived from the machine ID
// and the X11 display.
func Discover() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}

	display := os.Getenv("DISPLAY")
	if display == "" {
		display = ":0.0"
	}
	host, num, err := parseDisplay(display)
	if err != nil {
		return "", err
	}

	id, err := machineID()
	if err != nil {
		return "", fmt.Errorf("reading machine ID: %w", err)
	}

	cfgDir := os.Getenv("XDG_CONFIG_HOME")
	if cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cfgDir = filepath.Join(home, ".config")
	}

	return readSocketFile(socketPath(cfgDir, id, host, num))
}

// parseDisplay splits an X11 DISPLAY value into the hostname and
// display number that name the daemon's socket file. An empty
// hostname means the local socket transport, which IBus spells
// "unix".
func parseDisplay(display string) (host, num string, err error) {
	host, rest, ok := strings.Cut(display, ":")
	if !ok {
		return "", "", fmt.Errorf("malformed DISPLAY value %q", display)
	}
	if host == "" {
		host = "unix"
	}
	num, _, _ = strings.Cut(rest, ".")
	if num == "" {
		return "", "", fmt.Errorf("malformed DISPLAY value %q", display)
	}
	return host, num, nil
}

// socketPath returns the path of the daemon's socket file for the
// given machine and display.
func socketPath(cfgDir, machineID, host, displayNum string) string {
	return filepath.Join(cfgDir, "ibus", "bus", machineID+"-"+host+"-"+displayNum)
}

// readSocketFile extracts the bus address from a daemon socket file.
// The file is a sequence of lines, one of which is the address
// prefixed with "IBUS_ADDRESS=".
func readSocketFile(path string) (string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(bs), "\n") {
		if addr, ok := strings.CutPrefix(strings.TrimSpace(line), "IBUS_ADDRESS="); ok {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no IBUS_ADDRESS line in %s", path)
}

func machineID() (string, error) {
	bs, err := os.ReadFile("/etc/machine-id")
	if errors.Is(err, fs.ErrNotExist) {
		bs, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
}
