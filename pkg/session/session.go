// Package session prepares a packaging repository and runs tasks inside it.
package session

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"

	"github.com/MosesMendoza/packaging-cli/pkg"
	"github.com/MosesMendoza/packaging-cli/pkg/archive"
	"github.com/MosesMendoza/packaging-cli/pkg/logging"
)

// BootstrapTask is run in every prepared repository before any other task
const BootstrapTask = "package:bootstrap"

// DefaultVersion is checked out when no version was requested
const DefaultVersion = "HEAD"

// VCS clones bundles and checks out refs
type VCS interface {
	Clone(ctx context.Context, source, dest string) error
	Checkout(ctx context.Context, dir, ref string) error
}

// Extractor unpacks compressed bundles
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Fetcher downloads remote bundles
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// TempDirs creates the directories remote bundles are downloaded to
type TempDirs interface {
	MakeTempDir(ctx context.Context) (string, error)
}

// TaskRunner runs a named task with dir as the working directory
type TaskRunner interface {
	RunTask(ctx context.Context, dir, name string) error
}

// Session holds the state of one packaging run
type Session struct {
	ID      string
	Source  Source
	Version string
	Tasks   []string

	// RepoPath and BundlePath are filled in by Prepare
	RepoPath   string
	BundlePath string

	// FailFast stops ExecuteTasks at the first failing task. Otherwise all tasks run and
	// their failures are combined.
	FailFast bool

	VCS       VCS
	Extractor Extractor
	Fetcher   Fetcher
	TempDirs  TempDirs
	Runner    TaskRunner

	prepared bool
}

// New returns a fail-fast session for source that checks out DefaultVersion
func New(source Source) *Session {
	s := &Session{
		ID:       nanoid.New(),
		Source:   source,
		Version:  DefaultVersion,
		FailFast: true,
	}

	switch source.Kind {
	case RepoSource:
		s.RepoPath = source.Location
	case BundleSource:
		s.BundlePath = source.Location
	}
	return s
}

// Prepare resolves the source until a local repository exists, then checks out the
// requested version and bootstraps the repository.
func (s *Session) Prepare(ctx context.Context) error {
	if err := s.Source.validate(); err != nil {
		return err
	}

	for {
		switch s.Source.Kind {
		case RemoteBundleSource:
			bundle, err := s.RetrieveBundle(ctx, s.Source.Location)
			if err != nil {
				return err
			}
			s.Source = LocalBundle(bundle)

		case BundleSource:
			repo, err := s.UnpackBundle(ctx, s.Source.Location)
			if err != nil {
				return err
			}
			s.Source = LocalRepo(repo)

		case RepoSource:
			repo, err := filepath.Abs(s.Source.Location)
			if err != nil {
				return eris.Wrapf(err, "Failed to resolve %s", s.Source.Location)
			}
			s.Source = LocalRepo(repo)
			s.RepoPath = repo

			if err := s.CheckOutVersion(ctx); err != nil {
				return err
			}
			if err := s.Bootstrap(ctx); err != nil {
				return err
			}

			s.prepared = true
			return nil

		default:
			return s.Source.validate()
		}
	}
}

// Run prepares the session and executes its tasks
func (s *Session) Run(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		return err
	}
	return s.ExecuteTasks(ctx)
}

func (s *Session) cloneDir(parent string) (string, error) {
	dest := filepath.Join(parent, s.ID)
	for {
		_, err := os.Lstat(dest)
		if os.IsNotExist(err) {
			return dest, nil
		}
		if err != nil {
			return "", eris.Wrapf(err, "Failed to check %s", dest)
		}

		dest = filepath.Join(parent, s.ID+"-"+nanoid.New())
	}
}

// UnpackBundle extracts bundlePath if it's a compressed archive and clones the bundle
// into a new directory next to it. The clone directory is returned.
func (s *Session) UnpackBundle(ctx context.Context, bundlePath string) (string, error) {
	pkg.PrintTask("Unpacking bundle " + bundlePath)

	bundle, err := filepath.Abs(bundlePath)
	if err != nil {
		return "", &MissingBundleError{Path: bundlePath, Err: err}
	}

	if _, err := os.Stat(bundle); err != nil {
		return "", &MissingBundleError{Path: bundle, Err: err}
	}
	s.BundlePath = bundle
	parent := filepath.Dir(bundle)

	if base, suffix, ok := archive.SplitSuffix(bundle); ok {
		pkg.PrintSubtask("Extracting " + filepath.Base(bundle))
		logging.Log(ctx).Debug().Str("suffix", suffix).Str("dest", parent).Msg("Extracting bundle archive")

		if err := s.Extractor.Extract(ctx, bundle, parent); err != nil {
			return "", &ExtractionError{Path: bundle, Err: err}
		}
		s.BundlePath = base
	}

	dest, err := s.cloneDir(parent)
	if err != nil {
		return "", &CloneError{Bundle: s.BundlePath, Dest: filepath.Join(parent, s.ID), Err: err}
	}

	pkg.PrintSubtask("Cloning into " + dest)
	if err := s.VCS.Clone(ctx, s.BundlePath, dest); err != nil {
		return "", &CloneError{Bundle: s.BundlePath, Dest: dest, Err: err}
	}

	return dest, nil
}

func bundleFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidURLError{URL: rawURL, Reason: "can't be parsed", Err: err}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &InvalidURLError{URL: rawURL, Reason: "only http and https are supported"}
	}

	if u.Host == "" {
		return "", &InvalidURLError{URL: rawURL, Reason: "missing host"}
	}

	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", &InvalidURLError{URL: rawURL, Reason: "the path doesn't name a file"}
	}

	name := path.Base(u.Path)
	if name == "." || name == ".." || name == "/" {
		return "", &InvalidURLError{URL: rawURL, Reason: "the path doesn't name a file"}
	}
	return name, nil
}

// RetrieveBundle downloads rawURL into a new temporary directory and returns the path
// of the downloaded file. The file is named after the last element of the URL's path.
func (s *Session) RetrieveBundle(ctx context.Context, rawURL string) (string, error) {
	pkg.PrintTask("Retrieving bundle " + rawURL)

	name, err := bundleFileName(rawURL)
	if err != nil {
		return "", err
	}

	tmpDir, err := s.TempDirs.MakeTempDir(ctx)
	if err != nil {
		return "", &TempDirError{Err: err}
	}

	dest := filepath.Join(tmpDir, name)
	pkg.PrintSubtask("Downloading to " + dest)
	if err := s.Fetcher.Download(ctx, rawURL, dest); err != nil {
		return "", &DownloadError{URL: rawURL, Dest: dest, Err: err}
	}

	s.BundlePath = dest
	return dest, nil
}

// CheckOutVersion checks out the session's version in RepoPath
func (s *Session) CheckOutVersion(ctx context.Context) error {
	if s.RepoPath == "" {
		return &ConfigurationError{Reason: "no repository to check out"}
	}

	ref := s.Version
	if ref == "" {
		ref = DefaultVersion
	}

	pkg.PrintTask("Checking out " + ref + " in " + s.RepoPath)
	if err := s.VCS.Checkout(ctx, s.RepoPath, ref); err != nil {
		return &CheckoutError{Ref: ref, Dir: s.RepoPath, Err: err}
	}
	return nil
}

// Bootstrap runs BootstrapTask in RepoPath
func (s *Session) Bootstrap(ctx context.Context) error {
	if s.RepoPath == "" {
		return &ConfigurationError{Reason: "no repository to bootstrap"}
	}

	pkg.PrintTask("Bootstrapping " + s.RepoPath)
	if err := s.Runner.RunTask(ctx, s.RepoPath, BootstrapTask); err != nil {
		return &BootstrapError{Repo: s.RepoPath, Err: err}
	}
	return nil
}

// ExecuteTasks runs Tasks in order inside the prepared repository
func (s *Session) ExecuteTasks(ctx context.Context) error {
	if !s.prepared {
		return &ConfigurationError{Reason: "the session has not been prepared"}
	}

	var result error
	for _, name := range s.Tasks {
		if err := ctx.Err(); err != nil {
			return multierr.Append(result, err)
		}

		pkg.PrintTask("Running " + name)
		err := s.Runner.RunTask(ctx, s.RepoPath, name)
		if err == nil {
			continue
		}

		taskErr := &TaskError{Task: name, Repo: s.RepoPath, Err: err}
		if s.FailFast {
			return taskErr
		}

		pkg.PrintError(taskErr.Error())
		logging.Log(ctx).Error().Err(err).Str("task", name).Msg("Task failed, continuing with the next one")
		result = multierr.Append(result, taskErr)
	}

	return result
}
