package hostrunner

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// localShell wraps one spawned PTY-backed shell process and its current
// terminal size, mirroring the teacher's use of creack/pty for driving
// interactive subprocesses.
type localShell struct {
	id   uint32
	cmd  *exec.Cmd
	pty  *os.File
	mu   sync.Mutex
	rows int
	cols int
}

func spawnShell(id uint32, shellPath string, rows, cols int) (*localShell, error) {
	if shellPath == "" {
		shellPath = defaultShell()
	}
	cmd := exec.Command(shellPath)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}
	return &localShell{id: id, cmd: cmd, pty: f, rows: rows, cols: cols}, nil
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func (s *localShell) Read(p []byte) (int, error) {
	return s.pty.Read(p)
}

func (s *localShell) Write(p []byte) (int, error) {
	return s.pty.Write(p)
}

func (s *localShell) Resize(rows, cols int) error {
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
	return pty.Setsize(s.pty, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (s *localShell) Close() error {
	s.pty.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}
