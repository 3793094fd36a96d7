package runner

import (
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// killTree kills p and every process it spawned. The scrapers drive a
// headless browser, and killing only the interpreter would orphan it.
func killTree(log *slog.Logger, p *os.Process) error {
	if p == nil {
		return nil
	}

	if proc, err := process.NewProcess(int32(p.Pid)); err == nil {
		killDescendants(log, proc)
	}

	return p.Kill()
}

func killDescendants(log *slog.Logger, proc *process.Process) {
	children, err := proc.Children()
	if err != nil {
		// process.ErrorNoChildren is the common case.
		return
	}

	for _, child := range children {
		killDescendants(log, child)

		if err := child.Kill(); err != nil {
			log.Debug("Failed to kill child process", "pid", child.Pid, "error", err)
		} else {
			log.Debug("Killed child process", "pid", child.Pid, "parent_pid", proc.Pid)
		}
	}
}
