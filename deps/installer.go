package deps

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lsmux/lsmux/archive"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/fetch"
	"github.com/lsmux/lsmux/platform"
)

// Installer materializes a backend's dependencies into its runtime directory
type Installer struct {
	dependencies []Dependency
	downloader   fetch.Downloader
	logger       *zap.SugaredLogger
	host         platform.ID
}

// InstallerOption customizes an Installer
type InstallerOption func(*Installer)

// WithDownloader replaces the default go-getter downloader (used by tests)
func WithDownloader(d fetch.Downloader) InstallerOption {
	return func(i *Installer) { i.downloader = d }
}

// WithPlatform overrides host platform detection (used by tests)
func WithPlatform(id platform.ID) InstallerOption {
	return func(i *Installer) { i.host = id }
}

// NewInstaller creates an installer for the given descriptor list
func NewInstaller(logger *zap.SugaredLogger, dependencies []Dependency, opts ...InstallerOption) *Installer {
	inst := &Installer{
		dependencies: dependencies,
		logger:       logger,
		host:         platform.Current(),
	}
	for _, opt := range opts {
		opt(inst)
	}
	if inst.downloader == nil {
		inst.downloader = fetch.NewDownloader(logger)
	}
	return inst
}

// Install ensures every installable dependency is present under runtimeDir
// and returns a map from dependency ID to resolved absolute binary path.
//
// IDs with no descriptor matching the host platform are skipped with a
// warning; some backends are unavailable on some platforms by design. The
// runtime directory is created lazily and never deleted here.
func (i *Installer) Install(ctx context.Context, runtimeDir string) (map[string]string, error) {
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create runtime directory %s", runtimeDir)
	}

	resolved := make(map[string]string)
	for _, id := range IDs(i.dependencies) {
		dep, ok := Resolve(i.dependencies, id, i.host)
		if !ok {
			i.logger.Warnw("Dependency unavailable on this platform, skipping",
				"dependency", id,
				"platform", i.host,
			)
			continue
		}

		binaryPath := dep.BinaryPath(runtimeDir)
		if _, err := os.Stat(binaryPath); err == nil {
			i.logger.Debugw("Dependency already installed", "dependency", id, "binary", binaryPath)
			resolved[id] = binaryPath
			continue
		}

		if err := i.installOne(ctx, dep, runtimeDir); err != nil {
			return nil, err
		}

		// Re-check: a claimed-successful install that did not produce the
		// binary is a hard failure.
		if _, err := os.Stat(binaryPath); err != nil {
			return nil, errors.Wrapf(errors.ErrDependencyInstallIncomplete,
				"dependency %s: expected binary %s after install", id, binaryPath)
		}

		i.logger.Infow("Dependency installed", "dependency", id, "binary", binaryPath)
		resolved[id] = binaryPath
	}

	return resolved, nil
}

func (i *Installer) installOne(ctx context.Context, dep Dependency, runtimeDir string) error {
	if len(dep.InstallCommand) > 0 {
		return i.runInstallCommand(ctx, dep, runtimeDir)
	}
	if dep.URL != "" {
		return i.downloadAndExtract(ctx, dep, runtimeDir)
	}
	return errors.Newf("dependency %s has neither url nor install command", dep.ID)
}

func (i *Installer) runInstallCommand(ctx context.Context, dep Dependency, runtimeDir string) error {
	i.logger.Infow("Running install command",
		"dependency", dep.ID,
		"command", dep.InstallCommand,
		"dir", runtimeDir,
	)

	cmd := exec.CommandContext(ctx, dep.InstallCommand[0], dep.InstallCommand[1:]...)
	cmd.Dir = runtimeDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(errors.ErrInstallCommandFailed,
			"dependency %s: %v: %v: %s", dep.ID, dep.InstallCommand, err, output)
	}
	return nil
}

func (i *Installer) downloadAndExtract(ctx context.Context, dep Dependency, runtimeDir string) error {
	tmp, err := os.CreateTemp("", "lsmux-dl-*"+archiveSuffix(dep.ArchiveType))
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary download file for %s", dep.ID)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := i.downloader.Download(ctx, dep.URL, tmpPath); err != nil {
		return errors.Wrapf(err, "dependency %s", dep.ID)
	}

	opts := archive.Options{Include: dep.Include, Exclude: dep.Exclude}
	if err := archive.ExtractAll(i.logger, tmpPath, runtimeDir, dep.ArchiveType, opts); err != nil {
		return errors.Wrapf(err, "dependency %s: failed to extract %s", dep.ID, dep.URL)
	}
	return nil
}

func archiveSuffix(t archive.Type) string {
	if t == "" {
		return ""
	}
	return "." + filepath.Base(string(t))
}
