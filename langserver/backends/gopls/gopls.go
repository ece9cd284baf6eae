// Package gopls adapts the Go language server to the lsmux runtime: launch
// command, install recipe, readiness cue and typed operations.
package gopls

import (
	"context"
	"encoding/json"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/deps"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/platform"
)

// Language is the identifier this backend registers under
const Language = "gopls"

const serverDep = "gopls"

var metadata = langserver.Metadata{
	Language:    Language,
	Description: "Go language intelligence via gopls",
}

// Register installs this backend into a registry
func Register(r *langserver.Registry) error {
	return r.Register(metadata, New)
}

// dependencies lists the per-platform install recipes. gopls is built from
// source with the Go toolchain, so the recipe is an install command rather
// than an archive download; GOBIN is pointed at the runtime directory.
func dependencies() []deps.Dependency {
	const module = "golang.org/x/tools/gopls@latest"

	windows := deps.Dependency{
		ID:             serverDep,
		InstallCommand: []string{"cmd", "/c", "set GOBIN=%CD%&& go install " + module},
		BinaryName:     "gopls.exe",
	}

	var all []deps.Dependency
	for _, id := range []platform.ID{platform.WindowsX86, platform.WindowsX64, platform.WindowsArm64} {
		d := windows
		d.Platform = id
		all = append(all, d)
	}

	all = append(all, deps.Dependency{
		ID:             serverDep,
		Platform:       platform.Any,
		InstallCommand: []string{"sh", "-c", "GOBIN=$PWD go install " + module},
		BinaryName:     "gopls",
	})
	return all
}

// indexingDone reports readiness once gopls ends a workspace progress
// report. gopls announces "Setting up workspace" as work-done progress and
// closes it when the initial package load completes.
func indexingDone(method string, params json.RawMessage) bool {
	if method != "$/progress" {
		return false
	}
	var p struct {
		Value struct {
			Kind string `json:"kind"`
		} `json:"value"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}
	return p.Value.Kind == "end"
}

// New resolves the gopls binary (installing it when absent) and builds a
// server for the workspace root
func New(cfg *config.Config, root string, opts langserver.Options) (*langserver.Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("gopls backend requires a logger")
	}

	binary, err := langserver.EnsureBinary(context.Background(), opts.Logger, cfg, Language, serverDep, dependencies())
	if err != nil {
		return nil, err
	}

	return langserver.NewServer(langserver.Spec{
		Language:            Language,
		Command:             []string{binary, "serve"},
		Dependencies:        dependencies(),
		ReadinessPredicates: []langserver.ReadyPredicate{indexingDone},
		IgnorePatterns:      []string{"vendor/**", ".git/**"},
	}, cfg, root, opts)
}
