// Package platform normalizes the host operating system and CPU architecture
// into the closed identifier set used to select downloadable artifacts and
// install recipes for runtime dependencies.
package platform

import (
	"path/filepath"
	"runtime"
	"sync"
)

// ID identifies one supported host platform
type ID string

// The closed set of platform identifiers. Any identifies an artifact valid on
// every platform.
const (
	Any ID = "any"

	WindowsX86   ID = "win-x86"
	WindowsX64   ID = "win-x64"
	WindowsArm64 ID = "win-arm64"

	DarwinX64   ID = "osx-x64"
	DarwinArm64 ID = "osx-arm64"

	LinuxX86       ID = "linux-x86"
	LinuxX64       ID = "linux-x64"
	LinuxArm64     ID = "linux-arm64"
	LinuxMuslX64   ID = "linux-musl-x64"
	LinuxMuslArm64 ID = "linux-musl-arm64"

	Unknown ID = "unknown"
)

var (
	detectOnce sync.Once
	detected   ID

	overrideMu sync.RWMutex
	override   ID
)

// Current returns the identifier for the running host. The value is computed
// once; repeated calls are cheap and stable.
func Current() ID {
	overrideMu.RLock()
	o := override
	overrideMu.RUnlock()
	if o != "" {
		return o
	}

	detectOnce.Do(func() {
		detected = detect(runtime.GOOS, runtime.GOARCH, isMusl())
	})
	return detected
}

// SetOverride forces Current to report the given identifier. Pass an empty ID
// to restore detection. Intended for tests only.
func SetOverride(id ID) {
	overrideMu.Lock()
	override = id
	overrideMu.Unlock()
}

// Matches reports whether an artifact tagged with id applies to the host
// platform host. Any matches every host.
func (id ID) Matches(host ID) bool {
	return id == Any || id == host
}

// IsWindows reports whether the identifier belongs to the Windows family
func (id ID) IsWindows() bool {
	switch id {
	case WindowsX86, WindowsX64, WindowsArm64:
		return true
	}
	return false
}

// detect maps GOOS/GOARCH (plus libc flavor on Linux) onto the closed set
func detect(goos, goarch string, musl bool) ID {
	switch goos {
	case "windows":
		switch goarch {
		case "386":
			return WindowsX86
		case "amd64":
			return WindowsX64
		case "arm64":
			return WindowsArm64
		}
	case "darwin":
		switch goarch {
		case "amd64":
			return DarwinX64
		case "arm64":
			return DarwinArm64
		}
	case "linux":
		switch goarch {
		case "386":
			return LinuxX86
		case "amd64":
			if musl {
				return LinuxMuslX64
			}
			return LinuxX64
		case "arm64":
			if musl {
				return LinuxMuslArm64
			}
			return LinuxArm64
		}
	}
	return Unknown
}

// isMusl reports whether the host libc is musl, by probing for the musl
// dynamic loader. glibc systems do not ship ld-musl-*.
func isMusl() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	matches, err := filepath.Glob("/lib/ld-musl-*")
	return err == nil && len(matches) > 0
}
