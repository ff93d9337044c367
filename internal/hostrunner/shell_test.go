package hostrunner

import (
	"os"
	"testing"
)

func TestDefaultShellHonorsEnv(t *testing.T) {
	old, hadOld := os.LookupEnv("SHELL")
	defer func() {
		if hadOld {
			os.Setenv("SHELL", old)
		} else {
			os.Unsetenv("SHELL")
		}
	}()

	os.Setenv("SHELL", "/bin/zsh")
	if got := defaultShell(); got != "/bin/zsh" {
		t.Fatalf("defaultShell() = %q, want /bin/zsh", got)
	}
}

func TestDefaultShellFallsBack(t *testing.T) {
	old, hadOld := os.LookupEnv("SHELL")
	defer func() {
		if hadOld {
			os.Setenv("SHELL", old)
		} else {
			os.Unsetenv("SHELL")
		}
	}()

	os.Unsetenv("SHELL")
	if got := defaultShell(); got != "/bin/sh" {
		t.Fatalf("defaultShell() = %q, want /bin/sh", got)
	}
}

func TestSpawnShellResizeTracksState(t *testing.T) {
	sh, err := spawnShell(1, "/bin/sh", 24, 80)
	if err != nil {
		t.Skipf("pty unavailable in this environment: %v", err)
	}
	defer sh.Close()

	if err := sh.Resize(40, 100); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if sh.rows != 40 || sh.cols != 100 {
		t.Fatalf("got rows=%d cols=%d, want 40x100", sh.rows, sh.cols)
	}
}
