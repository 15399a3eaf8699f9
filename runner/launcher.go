package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/jahorta/soasim/ipc"
)

// WorkerHandle is one spawned worker's pipe pair plus lifecycle hooks.
type WorkerHandle struct {
	Conn *ipc.Conn

	// CloseWrite closes the parent's write half (the worker's stdin),
	// which is the orderly shutdown signal.
	CloseWrite func() error

	// Wait blocks until the worker is gone. Nil for in-process workers.
	Wait func() error
}

// Launcher spawns one worker and returns its pipe-backed handle. The
// production implementation execs the worker binary; tests wire
// in-process pipe pairs instead.
type Launcher interface {
	Launch(id int) (*WorkerHandle, error)
}

// ProcessLauncher launches workers as real child processes over
// anonymous OS pipes.
type ProcessLauncher struct {
	Plan BootPlan
}

// Launch spawns worker id with the boot plan's parameters and a
// per-worker user directory. The child's stderr passes through to ours
// (stderr is for logs only).
func (l *ProcessLauncher) Launch(id int) (*WorkerHandle, error) {
	args := []string{
		"--id", strconv.Itoa(id),
		"--iso", l.Plan.ISOPath,
		"--qtbase", l.Plan.QtBaseDir,
		"--userdir", fmt.Sprintf(l.Plan.UserDirTemplate, id),
		"--timeout", strconv.FormatUint(uint64(l.Plan.DefaultTimeoutMs), 10),
	}
	if l.Plan.SavestatePath != "" {
		args = append(args, "--savestate", l.Plan.SavestatePath)
	}

	cmd := exec.Command(l.Plan.WorkerExe, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: worker %d stdin pipe: %w", id, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: worker %d stdout pipe: %w", id, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runner: spawn worker %d: %w", id, err)
	}

	return &WorkerHandle{
		Conn:       ipc.NewConn(stdout, stdin),
		CloseWrite: stdin.Close,
		Wait:       cmd.Wait,
	}, nil
}
