//go:build !windows

package langserver

import (
	"os/exec"

	"github.com/kballard/go-shellquote"
)

// applyLaunchPolicy adjusts spawn options for the host platform. On POSIX
// hosts the command passes through unchanged.
func applyLaunchPolicy(cmd *exec.Cmd) {}

// QuoteArg wraps a path in platform-appropriate quoting only when necessary
func QuoteArg(path string) string {
	return shellquote.Join(path)
}
