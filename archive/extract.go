// Package archive unpacks downloaded dependency archives into a runtime
// directory with path-traversal protection and include/exclude filtering.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/internal/glob"
)

// Type identifies the archive container format
type Type string

const (
	Zip   Type = "zip"
	Tar   Type = "tar"
	TarGz Type = "tar.gz"
	ZipGz Type = "zip.gz"

	// Gz is a single gzip-compressed file rather than a container. Some
	// servers ship their binary this way (rust-analyzer releases).
	Gz Type = "gz"
)

// Options filters which archive entries are extracted. Patterns are anchored
// globs over the slash-separated entry path; an empty Include list admits
// every entry.
type Options struct {
	Include []string
	Exclude []string
}

func (o Options) selects(name string) bool {
	if len(o.Include) > 0 && !glob.MatchAny(o.Include, name) {
		return false
	}
	return !glob.MatchAny(o.Exclude, name)
}

// ExtractAll unpacks the archive at archivePath into targetDir.
//
// Entries whose resolved path would escape targetDir are skipped and logged,
// never written. Per-entry extraction errors are likewise logged without
// aborting the remaining entries; the caller verifies afterwards that the
// specific binary it needed exists.
func ExtractAll(log *zap.SugaredLogger, archivePath, targetDir string, typ Type, opts Options) error {
	if _, err := os.Stat(archivePath); err != nil {
		return errors.Wrapf(errors.ErrArchiveNotFound, "%s", archivePath)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create target directory %s", targetDir)
	}

	switch typ {
	case Zip:
		return extractZip(log, archivePath, targetDir, opts)
	case Tar:
		return extractTar(log, archivePath, targetDir, opts, false)
	case TarGz:
		return extractTar(log, archivePath, targetDir, opts, true)
	case ZipGz:
		return extractZipGz(log, archivePath, targetDir, opts)
	case Gz:
		return extractGz(log, archivePath, targetDir, opts)
	default:
		return errors.Newf("unsupported archive type %q", typ)
	}
}

func extractZip(log *zap.SugaredLogger, archivePath, targetDir string, opts Options) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open zip archive %s", archivePath)
	}
	defer r.Close()

	for _, f := range r.File {
		name := filepath.ToSlash(f.Name)
		if !opts.selects(name) {
			continue
		}

		dest, ok := secureJoin(targetDir, name)
		if !ok {
			log.Warnw("Skipping archive entry escaping target directory",
				"entry", name,
				"target", targetDir,
			)
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				log.Warnw("Failed to create directory from archive", "entry", name, "error", err)
			}
			continue
		}

		if err := writeZipEntry(f, dest); err != nil {
			log.Warnw("Failed to extract archive entry", "entry", name, "error", err)
		}
	}

	return nil
}

func writeZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	return writeFile(dest, rc, f.Mode())
}

func extractTar(log *zap.SugaredLogger, archivePath, targetDir string, opts Options, gzipped bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open tar archive %s", archivePath)
	}
	defer f.Close()

	var src io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "failed to open gzip stream in %s", archivePath)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed to read tar archive %s", archivePath)
		}

		name := filepath.ToSlash(hdr.Name)
		if !opts.selects(name) {
			continue
		}

		dest, ok := secureJoin(targetDir, name)
		if !ok {
			log.Warnw("Skipping archive entry escaping target directory",
				"entry", name,
				"target", targetDir,
			)
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				log.Warnw("Failed to create directory from archive", "entry", name, "error", err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr, hdr.FileInfo().Mode()); err != nil {
				log.Warnw("Failed to extract archive entry", "entry", name, "error", err)
			}
		default:
			// Symlinks and special files are a traversal vector; not needed
			// by any known dependency archive.
			log.Debugw("Skipping unsupported archive entry type",
				"entry", name,
				"type", hdr.Typeflag,
			)
		}
	}
}

// extractZipGz gunzips the archive to a temporary file, then extracts the
// inner zip
func extractZipGz(log *zap.SugaredLogger, archivePath, targetDir string, opts Options) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "failed to open gzip stream in %s", archivePath)
	}
	defer gz.Close()

	tmp, err := os.CreateTemp("", "lsmux-zipgz-*.zip")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file for gzipped zip")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to decompress %s", archivePath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize temporary zip")
	}

	return extractZip(log, tmp.Name(), targetDir, opts)
}

// extractGz decompresses a single-file gzip artifact. The output name comes
// from the gzip header when the producer recorded one, otherwise from the
// first include pattern. The file is written executable; every known
// single-file artifact is a server binary.
func extractGz(log *zap.SugaredLogger, archivePath, targetDir string, opts Options) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %s", archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "failed to open gzip stream in %s", archivePath)
	}
	defer gz.Close()

	name := filepath.ToSlash(filepath.Base(gz.Name))
	if name == "" || name == "." || name == "/" {
		if len(opts.Include) == 0 {
			return errors.Newf("gzip file %s carries no name and no include pattern was given", archivePath)
		}
		name = opts.Include[0]
	}

	if !opts.selects(name) {
		log.Debugw("Gzip content filtered out", "entry", name)
		return nil
	}

	dest, ok := secureJoin(targetDir, name)
	if !ok {
		log.Warnw("Skipping archive entry escaping target directory",
			"entry", name,
			"target", targetDir,
		)
		return nil
	}

	return writeFile(dest, gz, 0o755)
}

func writeFile(dest string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// secureJoin resolves an archive entry name against targetDir and reports
// whether the result stays inside it. This defeats zip-slip payloads such as
// "../../evil".
func secureJoin(targetDir, name string) (string, bool) {
	dest := filepath.Clean(filepath.Join(targetDir, filepath.FromSlash(name)))

	rel, err := filepath.Rel(targetDir, dest)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if filepath.IsAbs(rel) {
		return "", false
	}
	return dest, true
}
