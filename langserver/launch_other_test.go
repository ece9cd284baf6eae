//go:build !windows

package langserver

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyLaunchPolicy(t *testing.T) {
	cmd := exec.Command("true")
	applyLaunchPolicy(cmd)
	assert.Nil(t, cmd.SysProcAttr)
}

func TestQuoteArg(t *testing.T) {
	assert.Equal(t, "/usr/bin/gopls", QuoteArg("/usr/bin/gopls"))
	assert.Equal(t, "'/opt/my tools/gopls'", QuoteArg("/opt/my tools/gopls"))
	assert.Equal(t, "''", QuoteArg(""))
}
