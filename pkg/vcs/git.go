// Package vcs wraps the git command line client.
package vcs

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg/shell"
)

// Git runs git commands through a shell.Runner
type Git struct {
	Runner shell.Runner
	Binary string
}

// NewGit returns a Git client using the git binary from PATH
func NewGit(runner shell.Runner) *Git {
	return &Git{Runner: runner, Binary: "git"}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	result, err := g.Runner.Run(ctx, dir, binary, args...)
	if err != nil {
		return err
	}

	return result.Err()
}

// Clone clones source (a repository URL, path or bundle file) into dest. The command
// runs inside dest's parent directory.
func (g *Git) Clone(ctx context.Context, source, dest string) error {
	err := g.run(ctx, filepath.Dir(dest), "clone", source, dest)
	if err != nil {
		return eris.Wrapf(err, "Failed to clone %s into %s", source, dest)
	}
	return nil
}

// Checkout checks out ref inside the repository at dir
func (g *Git) Checkout(ctx context.Context, dir, ref string) error {
	err := g.run(ctx, dir, "checkout", ref)
	if err != nil {
		return eris.Wrapf(err, "Failed to check out %s in %s", ref, dir)
	}
	return nil
}
