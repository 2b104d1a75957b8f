// Package archive detects compressed tarballs and unpacks them, either with the
// external tar binary or in-process.
package archive

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg/shell"
)

type compression int

const (
	gzipCompression compression = iota + 1
	bzip2Compression
	xzCompression
	brotliCompression
)

type suffixInfo struct {
	suffix string
	kind   compression
}

// longer suffixes come first so that SplitSuffix never strips partially
var knownSuffixes = []suffixInfo{
	{".tar.bz2", bzip2Compression},
	{".tar.gz", gzipCompression},
	{".tar.xz", xzCompression},
	{".tar.br", brotliCompression},
	{".tbz2", bzip2Compression},
	{".tgz", gzipCompression},
	{".txz", xzCompression},
}

// ErrUnsupported is returned for files which don't carry a known archive suffix
var ErrUnsupported = eris.New("Archive format not supported")

func lookupSuffix(path string) (suffixInfo, bool) {
	for _, info := range knownSuffixes {
		if strings.HasSuffix(path, info.suffix) && len(path) > len(info.suffix) {
			return info, true
		}
	}
	return suffixInfo{}, false
}

// SplitSuffix returns path without its compressed tarball suffix. ok is false if path
// doesn't end in one of the recognized suffixes.
func SplitSuffix(path string) (base, suffix string, ok bool) {
	info, ok := lookupSuffix(path)
	if !ok {
		return path, "", false
	}

	return path[:len(path)-len(info.suffix)], info.suffix, true
}

// IsArchive reports whether path carries a recognized compressed tarball suffix
func IsArchive(path string) bool {
	_, ok := lookupSuffix(path)
	return ok
}

// TarCommand extracts archives by calling the external tar binary
type TarCommand struct {
	Runner shell.Runner
	Binary string
}

// Extract unpacks archivePath into destDir
func (t *TarCommand) Extract(ctx context.Context, archivePath, destDir string) error {
	info, ok := lookupSuffix(archivePath)
	if !ok {
		return eris.Wrapf(ErrUnsupported, "Can't extract %s", archivePath)
	}

	if info.kind == brotliCompression {
		return eris.Wrapf(ErrUnsupported, "tar can't decompress %s; use the native extractor instead", archivePath)
	}

	binary := t.Binary
	if binary == "" {
		binary = "tar"
	}

	result, err := t.Runner.Run(ctx, destDir, binary, "-C", destDir, "-xf", archivePath)
	if err != nil {
		return err
	}

	if err := result.Err(); err != nil {
		return eris.Wrapf(err, "Failed to extract %s", archivePath)
	}
	return nil
}
