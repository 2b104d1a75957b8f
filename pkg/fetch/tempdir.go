package fetch

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg/shell"
)

// TempDirPattern is the template passed to mktemp
const TempDirPattern = "pkgXXXXXX"

// Mktemp creates temporary directories with the external mktemp utility
type Mktemp struct {
	Runner shell.Runner
	Binary string
}

func (m *Mktemp) MakeTempDir(ctx context.Context) (string, error) {
	binary := m.Binary
	if binary == "" {
		binary = "mktemp"
	}

	result, err := m.Runner.Run(ctx, "", binary, "-d", "-t", TempDirPattern)
	if err != nil {
		return "", err
	}

	if err := result.Err(); err != nil {
		return "", err
	}

	dir := strings.TrimSpace(result.Stdout)
	if dir == "" {
		return "", eris.Errorf("%s didn't print a directory", binary)
	}

	return dir, nil
}

// OSTempDir creates temporary directories in os.TempDir() without calling out to mktemp
type OSTempDir struct{}

func (OSTempDir) MakeTempDir(ctx context.Context) (string, error) {
	dir, err := os.MkdirTemp("", "pkg")
	if err != nil {
		return "", eris.Wrap(err, "Failed to create temporary directory")
	}

	return dir, nil
}
