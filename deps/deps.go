// Package deps resolves and installs the runtime dependencies a backend
// needs before its server process can be launched.
//
// A backend supplies an ordered list of Dependency descriptors, several of
// which may share an ID when the same logical dependency has per-platform
// artifacts. For each ID the installer picks the descriptor matching the
// host platform, obtains the artifact (download+extract or an external
// install command) and verifies the expected binary exists afterwards.
package deps

import (
	"path/filepath"

	"github.com/lsmux/lsmux/archive"
	"github.com/lsmux/lsmux/platform"
)

// Dependency describes one installable artifact for one platform
type Dependency struct {
	// ID groups multiple platform variants of the same logical dependency
	ID string

	// Platform restricts the descriptor to one host platform; platform.Any
	// applies everywhere
	Platform platform.ID

	// URL and ArchiveType describe a downloadable archive. Mutually
	// exclusive with InstallCommand.
	URL         string
	ArchiveType archive.Type

	// InstallCommand is an argument vector executed with the runtime
	// directory as working directory
	InstallCommand []string

	// BinaryName is the slash-separated path of the executable relative to
	// the runtime directory after install/extract
	BinaryName string

	// Include and Exclude filter archive entries during extraction
	Include []string
	Exclude []string
}

// BinaryPath returns the absolute path the descriptor's binary will occupy
// under runtimeDir. Pure; performs no I/O.
func (d Dependency) BinaryPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, filepath.FromSlash(d.BinaryName))
}

// Resolve selects, for the given ID, the descriptor applicable to host.
// Returns false when no variant of the ID matches the host platform.
func Resolve(dependencies []Dependency, id string, host platform.ID) (Dependency, bool) {
	// An exact platform match wins over an "any" fallback
	var fallback *Dependency
	for i := range dependencies {
		d := dependencies[i]
		if d.ID != id {
			continue
		}
		if d.Platform == host {
			return d, true
		}
		if d.Platform == platform.Any && fallback == nil {
			fallback = &d
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Dependency{}, false
}

// IDs returns the distinct dependency IDs in first-seen order
func IDs(dependencies []Dependency) []string {
	seen := make(map[string]bool, len(dependencies))
	var ids []string
	for _, d := range dependencies {
		if !seen[d.ID] {
			seen[d.ID] = true
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// BinaryPath resolves the binary path for id under runtimeDir without
// installing anything. Used to decide whether installation is needed at all.
func BinaryPath(dependencies []Dependency, id string, host platform.ID, runtimeDir string) (string, bool) {
	d, ok := Resolve(dependencies, id, host)
	if !ok {
		return "", false
	}
	return d.BinaryPath(runtimeDir), true
}
