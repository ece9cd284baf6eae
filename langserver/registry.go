package langserver

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/version"
)

// Metadata describes a registered backend
type Metadata struct {
	// Language is the logical identifier callers use (e.g. "gopls",
	// "rust-analyzer")
	Language string

	// Description is a one-line summary for listings
	Description string

	// LsmuxVersion is an optional semver constraint on the lsmux version the
	// backend requires; empty means any
	LsmuxVersion string
}

// Constructor builds a Server for one workspace root
type Constructor func(cfg *config.Config, root string, opts Options) (*Server, error)

type registration struct {
	meta Metadata
	ctor Constructor
}

// Registry maps logical language identifiers to backend constructors.
// Backends register explicitly during process start-up; registration order
// is controlled by the caller, and the last registration for a language wins.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]registration
	version  string
}

// NewRegistry creates a registry validating constraints against coreVersion
func NewRegistry(coreVersion string) *Registry {
	return &Registry{
		backends: make(map[string]registration),
		version:  coreVersion,
	}
}

// Register stores a language -> constructor mapping. A duplicate
// registration for the same language overwrites the earlier one.
func (r *Registry) Register(meta Metadata, ctor Constructor) error {
	if meta.Language == "" {
		return errors.New("backend metadata requires a language identifier")
	}
	if ctor == nil {
		return errors.Newf("backend %s registered without a constructor", meta.Language)
	}
	if err := r.validateVersion(meta); err != nil {
		return errors.Wrapf(err, "version incompatible for backend %s", meta.Language)
	}

	r.mu.Lock()
	r.backends[meta.Language] = registration{meta: meta, ctor: ctor}
	r.mu.Unlock()
	return nil
}

// Create looks up the language's constructor and instantiates a server for
// the given workspace root
func (r *Registry) Create(language string, cfg *config.Config, root string, opts Options) (*Server, error) {
	r.mu.RLock()
	reg, ok := r.backends[language]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewUnknownLanguage(language)
	}
	if cfg.Backend(language).Disabled {
		return nil, errors.Newf("backend %s is disabled by configuration", language)
	}

	return reg.ctor(cfg, root, opts)
}

// Languages returns all registered language identifiers in sorted order
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	languages := make([]string, 0, len(r.backends))
	for language := range r.backends {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	return languages
}

// Metadata returns the metadata for a registered language
func (r *Registry) Metadata(language string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.backends[language]
	return reg.meta, ok
}

// validateVersion checks the backend's constraint against the lsmux version
func (r *Registry) validateVersion(meta Metadata) error {
	if meta.LsmuxVersion == "" {
		return nil
	}

	coreVer, err := semver.NewVersion(r.version)
	if err != nil {
		// Dev builds carry no parseable version; accept everything
		return nil
	}

	constraint, err := semver.NewConstraint(meta.LsmuxVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", meta.LsmuxVersion)
	}

	if !constraint.Check(coreVer) {
		return errors.Newf("backend requires lsmux %s, but running %s", meta.LsmuxVersion, r.version)
	}
	return nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(version.Version)
	})
	return defaultRegistry
}

// Register registers a backend with the default registry
func Register(meta Metadata, ctor Constructor) error {
	return Default().Register(meta, ctor)
}

// Create instantiates a server from the default registry
func Create(language string, cfg *config.Config, root string, opts Options) (*Server, error) {
	return Default().Create(language, cfg, root, opts)
}
