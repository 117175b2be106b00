package transport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDisplay(t *testing.T) {
	tests := []struct {
		display   string
		host, num string
		wantErr   bool
	}{
		{display: ":0.0", host: "unix", num: "0"},
		{display: ":1", host: "unix", num: "1"},
		{display: ":10.2", host: "unix", num: "10"},
		{display: "remotehost:2.1", host: "remotehost", num: "2"},
		{display: "localhost:10", host: "localhost", num: "10"},
		{display: "nocolon", wantErr: true},
		{display: ":", wantErr: true},
		{display: ":.0", wantErr: true},
	}

	for _, tc := range tests {
		host, num, err := parseDisplay(tc.display)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseDisplay(%q) = %q/%q, want error", tc.display, host, num)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDisplay(%q) got err: %v", tc.display, err)
		} else if host != tc.host || num != tc.num {
			t.Errorf("parseDisplay(%q) = %q/%q, want %q/%q", tc.display, host, num, tc.host, tc.num)
		}
	}
}

func TestSocketPath(t *testing.T) {
	got := socketPath("/home/u/.config", "d0e14cb1a3", "unix", "0")
	want := filepath.Join("/home/u/.config", "ibus", "bus", "d0e14cb1a3-unix-0")
	if got != want {
		t.Errorf("socketPath = %q, want %q", got, want)
	}
}

func TestReadSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socketfile")
	content := `# This file is created by ibus-daemon, please do not modify it.
# This file allows processes on the machine to find the
# ibus session bus address.
IBUS_ADDRESS=unix:abstract=/home/u/.cache/ibus/dbus-x7K3qKbV,guid=99ae1662
IBUS_DAEMON_PID=23407
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readSocketFile(path)
	if err != nil {
		t.Fatalf("readSocketFile got err: %v", err)
	}
	if want := "unix:abstract=/home/u/.cache/ibus/dbus-x7K3qKbV,guid=99ae1662"; got != want {
		t.Errorf("readSocketFile = %q, want %q", got, want)
	}
}

func TestReadSocketFileErrors(t *testing.T) {
	if _, err := readSocketFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("readSocketFile(missing file) succeeded, want error")
	}

	path := filepath.Join(t.TempDir(), "noaddr")
	if err := os.WriteFile(path, []byte("# no address here\nIBUS_DAEMON_PID=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, err := readSocketFile(path); err == nil {
		t.Errorf("readSocketFile(no address) = %q, want error", got)
	}
}

func TestDiscoverFromEnv(t *testing.T) {
	t.Setenv("IBUS_ADDRESS", "unix:path=/run/user/1000/ibus/bus")

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover got err: %v", err)
	}
	if want := "unix:path=/run/user/1000/ibus/bus"; got != want {
		t.Errorf("Discover = %q, want %q", got, want)
	}
}

func TestDiscoverFromSocketFile(t *testing.T) {
	id, err := machineID()
	if err != nil {
		t.Skipf("no machine ID on this system: %v", err)
	}

	dir := t.TempDir()
	t.Setenv("IBUS_ADDRESS", "")
	t.Setenv("DISPLAY", "myhost:3.1")
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := socketPath(dir, id, "myhost", "3")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	content := "# socket file\nIBUS_ADDRESS=unix:path=/run/user/1000/ibus/bus\nIBUS_DAEMON_PID=99\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover got err: %v", err)
	}
	if want := "unix:path=/run/user/1000/ibus/bus"; got != want {
		t.Errorf("Discover = %q, want %q", got, want)
	}
}
