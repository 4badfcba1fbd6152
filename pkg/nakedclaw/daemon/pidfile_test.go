package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPIDFile = %d, want %d", pid, os.Getpid())
	}

	// The test process itself is trivially alive.
	running, gotPID := IsRunning(path)
	if !running || gotPID != os.Getpid() {
		t.Errorf("IsRunning = (%v, %d), want (true, %d)", running, gotPID, os.Getpid())
	}

	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("second RemovePIDFile: %v", err)
	}
}

func TestIsRunningStaleAndMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		write   bool
	}{
		{"missing file", "", false},
		// PID 1 is init and always alive but owned by root, so use a
		// PID far beyond the default pid_max instead.
		{"dead pid", "4194999\n", true},
		{"garbage", "not-a-pid\n", true},
		{"negative", "-5\n", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name+".pid")
			if tt.write {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("writing pid file: %v", err)
				}
			}

			running, _ := IsRunning(path)
			if running {
				t.Errorf("IsRunning reported true for %s", tt.name)
			}

			// The probe must never delete the file; the daemon owns
			// its own record.
			if tt.write {
				if _, err := os.Stat(path); err != nil {
					t.Errorf("probe removed the PID file: %v", err)
				}
			}
		})
	}
}
