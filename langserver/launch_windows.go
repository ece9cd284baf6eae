//go:build windows

package langserver

import (
	"os/exec"
	"strings"
	"syscall"
)

// applyLaunchPolicy adjusts spawn options for the host platform. On Windows
// a spawned language server must not flash a console window; the flag is
// only set when the caller has not already supplied its own attributes.
func applyLaunchPolicy(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			HideWindow:    true,
			CreationFlags: 0x08000000, // CREATE_NO_WINDOW
		}
	}
}

// QuoteArg wraps a path in platform-appropriate quoting only when necessary
func QuoteArg(path string) string {
	if strings.ContainsAny(path, " \t") && !strings.HasPrefix(path, `"`) {
		return `"` + path + `"`
	}
	return path
}
