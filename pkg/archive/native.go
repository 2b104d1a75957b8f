package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"

	"github.com/MosesMendoza/packaging-cli/pkg"
)

// Native extracts archives in-process. It doesn't need tar to be installed and
// additionally understands brotli compressed tarballs.
type Native struct {
	Quiet bool
}

// Extract unpacks archivePath into destDir
func (n *Native) Extract(ctx context.Context, archivePath, destDir string) error {
	info, ok := lookupSuffix(archivePath)
	if !ok {
		return eris.Wrapf(ErrUnsupported, "Can't extract %s", archivePath)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", archivePath)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat %s", archivePath)
	}

	var reader io.Reader
	switch info.kind {
	case gzipCompression:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return eris.Wrapf(err, "Failed to open gzip stream in %s", archivePath)
		}
		defer gz.Close()
		reader = gz
	case bzip2Compression:
		reader = bzip2.NewReader(f)
	case xzCompression:
		reader, err = xz.NewReader(f)
		if err != nil {
			return eris.Wrapf(err, "Failed to open xz stream in %s", archivePath)
		}
	case brotliCompression:
		reader = brotli.NewReader(f)
	}

	bar := pkg.GetProgressBar(stat.Size(), "      extract", n.Quiet)
	defer bar.Finish()

	destDir, err = filepath.Abs(destDir)
	if err != nil {
		return err
	}

	return extractTar(ctx, reader, f, bar, destDir)
}

// entryDest maps an archive entry to its path below destDir. Entries that leave destDir,
// either lexically or through a symlink created by an earlier entry, are rejected.
func entryDest(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if !within(destDir, dest) {
		return "", eris.Errorf("Archive entry %s points outside of %s", name, destDir)
	}

	rel, err := filepath.Rel(destDir, filepath.Dir(dest))
	if err != nil || rel == "." {
		return dest, err
	}

	parent := destDir
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		parent = filepath.Join(parent, part)
		info, err := os.Lstat(parent)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				break
			}
			return "", eris.Wrapf(err, "Failed to check %s", parent)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return "", eris.Errorf("Archive entry %s is located below the symlink %s", name, parent)
		}
	}

	return dest, nil
}

func within(destDir, path string) bool {
	return path == destDir || strings.HasPrefix(path, destDir+string(filepath.Separator))
}

func checkLink(destDir, dest, linkname string) error {
	if filepath.IsAbs(linkname) {
		return eris.Errorf("Symlink %s points to the absolute path %s", dest, linkname)
	}

	target := filepath.Join(filepath.Dir(dest), filepath.FromSlash(linkname))
	if !within(destDir, target) {
		return eris.Errorf("Symlink %s points outside of %s", dest, destDir)
	}
	return nil
}

func extractTar(ctx context.Context, r io.Reader, f *os.File, bar *progressbar.ProgressBar, destDir string) error {
	archive := tar.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		dest, err := entryDest(destDir, item.Name)
		if err != nil {
			return err
		}

		fi := item.FileInfo()
		switch item.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(dest, 0o770)
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", dest)
			}
			continue
		case tar.TypeSymlink:
			if err = checkLink(destDir, dest, item.Linkname); err != nil {
				return err
			}

			err = os.MkdirAll(filepath.Dir(dest), 0o770)
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		case tar.TypeReg:
		default:
			// hard links, devices and the like never show up in bundle tarballs
			continue
		}

		err = os.MkdirAll(filepath.Dir(dest), 0o770)
		if err != nil {
			return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
		}

		if info, err := os.Lstat(dest); err == nil && info.Mode()&os.ModeSymlink != 0 {
			if err = os.Remove(dest); err != nil {
				return eris.Wrapf(err, "Failed to replace symlink %s", dest)
			}
		}

		destHandle, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
		if err != nil {
			return eris.Wrapf(err, "Failed to create file %s", dest)
		}

		_, err = io.Copy(destHandle, archive)
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}
