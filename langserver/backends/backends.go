// Package backends wires the bundled language adapters into a registry.
package backends

import (
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/langserver/backends/gopls"
	"github.com/lsmux/lsmux/langserver/backends/rustanalyzer"
)

// RegisterBuiltins registers every bundled backend. Callers invoke this
// explicitly at process start; nothing registers itself via import side
// effects.
func RegisterBuiltins(r *langserver.Registry) error {
	for _, register := range []func(*langserver.Registry) error{
		gopls.Register,
		rustanalyzer.Register,
	} {
		if err := register(r); err != nil {
			return errors.Wrap(err, "failed to register builtin backend")
		}
	}
	return nil
}
