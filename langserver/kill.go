package langserver

import (
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lsmux/lsmux/errors"
)

// killTree forcibly terminates a process and any children it spawned.
// Language servers commonly fork worker processes (clangd, node-based
// servers) that would otherwise be orphaned by killing the parent alone.
func killTree(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone
		return nil
	}

	running, err := proc.IsRunning()
	if err == nil && !running {
		return nil
	}

	children, err := proc.Children()
	if err == nil {
		for _, child := range children {
			// Recurse before killing the parent so grandchildren are found
			// while the tree is still intact
			_ = killTree(int(child.Pid))
		}
	}

	if err := proc.Kill(); err != nil {
		return errors.Wrapf(err, "failed to kill process %d", pid)
	}
	return nil
}
