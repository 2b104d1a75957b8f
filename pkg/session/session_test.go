package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// recorder implements every collaborator of a session and records the calls in order
type recorder struct {
	t     *testing.T
	calls []string

	extractErr  error
	cloneErr    error
	checkoutErr error
	downloadErr error
	tempDirErr  error
	taskErrs    map[string]error
}

func (r *recorder) Clone(ctx context.Context, source, dest string) error {
	r.calls = append(r.calls, "clone "+source+" "+dest)
	if r.cloneErr != nil {
		return r.cloneErr
	}
	return os.Mkdir(dest, 0o755)
}

func (r *recorder) Checkout(ctx context.Context, dir, ref string) error {
	r.calls = append(r.calls, "checkout "+dir+" "+ref)
	return r.checkoutErr
}

func (r *recorder) Extract(ctx context.Context, archivePath, destDir string) error {
	r.calls = append(r.calls, "extract "+archivePath+" "+destDir)
	return r.extractErr
}

func (r *recorder) Download(ctx context.Context, url, dest string) error {
	r.calls = append(r.calls, "download "+url+" "+dest)
	if r.downloadErr != nil {
		return r.downloadErr
	}
	return os.WriteFile(dest, []byte("bundle"), 0o644)
}

func (r *recorder) MakeTempDir(ctx context.Context) (string, error) {
	r.calls = append(r.calls, "mktemp")
	if r.tempDirErr != nil {
		return "", r.tempDirErr
	}
	return os.MkdirTemp(r.t.TempDir(), "pkg")
}

func (r *recorder) RunTask(ctx context.Context, dir, name string) error {
	r.calls = append(r.calls, "task "+dir+" "+name)
	return r.taskErrs[name]
}

func newSession(t *testing.T, source Source) (*Session, *recorder) {
	rec := &recorder{t: t, taskErrs: map[string]error{}}
	s := New(source)
	s.VCS = rec
	s.Extractor = rec
	s.Fetcher = rec
	s.TempDirs = rec
	s.Runner = rec
	return s, rec
}

func writeBundle(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("bundle"), 0o644))
	return path
}

func TestSourceFrom(t *testing.T) {
	tests := []struct {
		name                 string
		repo, bundle, remote string
		want                 Source
	}{
		{"repo only", "/srv/repo", "", "", LocalRepo("/srv/repo")},
		{"bundle only", "", "/tmp/p.bundle", "", LocalBundle("/tmp/p.bundle")},
		{"remote only", "", "", "https://example.com/p.bundle", RemoteBundle("https://example.com/p.bundle")},
		{"repo wins", "/srv/repo", "/tmp/p.bundle", "https://example.com/p.bundle", LocalRepo("/srv/repo")},
		{"bundle beats remote", "", "/tmp/p.bundle", "https://example.com/p.bundle", LocalBundle("/tmp/p.bundle")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceFrom(tt.repo, tt.bundle, tt.remote)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SourceFrom("", "", "")
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestPrepareWithoutSource(t *testing.T) {
	for _, source := range []Source{{}, LocalRepo(""), RemoteBundle("")} {
		s, rec := newSession(t, source)
		err := s.Prepare(context.Background())

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "source %v", source)
		assert.Empty(t, rec.calls)
	}
}

func TestPrepareLocalRepo(t *testing.T) {
	repo := t.TempDir()
	s, rec := newSession(t, LocalRepo(repo))

	require.NoError(t, s.Prepare(context.Background()))
	assert.Equal(t, []string{
		"checkout " + repo + " HEAD",
		"task " + repo + " package:bootstrap",
	}, rec.calls)
	assert.Equal(t, repo, s.RepoPath)
}

func TestPrepareMakesRepoPathAbsolute(t *testing.T) {
	s, _ := newSession(t, LocalRepo("relative/repo"))
	require.NoError(t, s.Prepare(context.Background()))
	assert.True(t, filepath.IsAbs(s.RepoPath))
}

func TestPrepareLocalBundle(t *testing.T) {
	bundle := writeBundle(t, "proj.bundle")
	parent := filepath.Dir(bundle)
	s, rec := newSession(t, LocalBundle(bundle))
	s.Version = "v1.2.0"

	require.NoError(t, s.Prepare(context.Background()))

	clone := filepath.Join(parent, s.ID)
	assert.Equal(t, []string{
		"clone " + bundle + " " + clone,
		"checkout " + clone + " v1.2.0",
		"task " + clone + " package:bootstrap",
	}, rec.calls)
	assert.Equal(t, clone, s.RepoPath)
	assert.Equal(t, bundle, s.BundlePath)
	assert.Equal(t, LocalRepo(clone), s.Source)
}

func TestUnpackCompressedBundle(t *testing.T) {
	archivePath := writeBundle(t, "foo.tar.gz")
	parent := filepath.Dir(archivePath)
	s, rec := newSession(t, LocalBundle(archivePath))

	dest, err := s.UnpackBundle(context.Background(), archivePath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(parent, "foo"), s.BundlePath)
	assert.Equal(t, filepath.Join(parent, s.ID), dest)
	assert.Equal(t, []string{
		"extract " + archivePath + " " + parent,
		"clone " + filepath.Join(parent, "foo") + " " + dest,
	}, rec.calls)
}

func TestUnpackTwiceUsesDistinctDirectories(t *testing.T) {
	bundle := writeBundle(t, "proj.bundle")
	s, _ := newSession(t, LocalBundle(bundle))
	ctx := context.Background()

	first, err := s.UnpackBundle(ctx, bundle)
	require.NoError(t, err)
	second, err := s.UnpackBundle(ctx, bundle)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Dir(bundle), filepath.Dir(second))
	assert.DirExists(t, first)
	assert.DirExists(t, second)
}

func TestUnpackMissingBundle(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.bundle")
	s, rec := newSession(t, LocalBundle(missing))

	err := s.Prepare(context.Background())
	var missingErr *MissingBundleError
	require.True(t, errors.As(err, &missingErr))
	assert.Equal(t, missing, missingErr.Path)
	assert.Contains(t, err.Error(), missing)
	assert.Empty(t, rec.calls)
}

func TestUnpackFailures(t *testing.T) {
	boom := errors.New("exit status 2")

	t.Run("extraction", func(t *testing.T) {
		archivePath := writeBundle(t, "foo.tar.xz")
		s, rec := newSession(t, LocalBundle(archivePath))
		rec.extractErr = boom

		err := s.Prepare(context.Background())
		var extractErr *ExtractionError
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, archivePath, extractErr.Path)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, rec.calls, 1)
	})

	t.Run("clone", func(t *testing.T) {
		bundle := writeBundle(t, "proj.bundle")
		s, rec := newSession(t, LocalBundle(bundle))
		rec.cloneErr = boom

		err := s.Prepare(context.Background())
		var cloneErr *CloneError
		require.True(t, errors.As(err, &cloneErr))
		assert.Equal(t, bundle, cloneErr.Bundle)
		assert.Equal(t, filepath.Join(filepath.Dir(bundle), s.ID), cloneErr.Dest)
		assert.Len(t, rec.calls, 1)
	})
}

func TestPrepareRemoteBundle(t *testing.T) {
	const url = "https://example.com/bundles/proj.bundle"
	s, rec := newSession(t, RemoteBundle(url))
	s.Version = "v1.2.0"
	s.Tasks = []string{"package:tar"}

	require.NoError(t, s.Run(context.Background()))

	bundle := s.BundlePath
	assert.Equal(t, "proj.bundle", filepath.Base(bundle))
	assert.FileExists(t, bundle)

	clone := filepath.Join(filepath.Dir(bundle), s.ID)
	assert.Equal(t, clone, s.RepoPath)
	assert.Equal(t, []string{
		"mktemp",
		"download " + url + " " + bundle,
		"clone " + bundle + " " + clone,
		"checkout " + clone + " v1.2.0",
		"task " + clone + " package:bootstrap",
		"task " + clone + " package:tar",
	}, rec.calls)
}

func TestPrepareTwiceDoesNotRefetch(t *testing.T) {
	s, rec := newSession(t, RemoteBundle("https://example.com/proj.bundle"))
	ctx := context.Background()

	require.NoError(t, s.Prepare(ctx))
	rec.calls = nil
	require.NoError(t, s.Prepare(ctx))

	assert.Equal(t, []string{
		"checkout " + s.RepoPath + " HEAD",
		"task " + s.RepoPath + " package:bootstrap",
	}, rec.calls)
}

func TestRetrieveBundleInvalidURL(t *testing.T) {
	urls := []string{
		"://missing-scheme",
		"ftp://example.com/proj.bundle",
		"https:///proj.bundle",
		"https://example.com",
		"https://example.com/bundles/",
		"https://example.com/..",
		"https://example.com/bundles/.",
		"https://example.com/bundles/..",
	}

	for _, url := range urls {
		t.Run(url, func(t *testing.T) {
			s, rec := newSession(t, RemoteBundle(url))
			_, err := s.RetrieveBundle(context.Background(), url)

			var urlErr *InvalidURLError
			require.True(t, errors.As(err, &urlErr))
			assert.Equal(t, url, urlErr.URL)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestRetrieveBundleFailures(t *testing.T) {
	const url = "https://example.com/bundles/proj.bundle"
	boom := errors.New("boom")

	t.Run("temp dir", func(t *testing.T) {
		s, rec := newSession(t, RemoteBundle(url))
		rec.tempDirErr = boom

		_, err := s.RetrieveBundle(context.Background(), url)
		var tmpErr *TempDirError
		require.True(t, errors.As(err, &tmpErr))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"mktemp"}, rec.calls)
	})

	t.Run("download", func(t *testing.T) {
		s, rec := newSession(t, RemoteBundle(url))
		rec.downloadErr = boom

		err := s.Prepare(context.Background())
		var dlErr *DownloadError
		require.True(t, errors.As(err, &dlErr))
		assert.Equal(t, url, dlErr.URL)
		assert.Equal(t, "proj.bundle", filepath.Base(dlErr.Dest))
		assert.Len(t, rec.calls, 2)
	})
}

func TestCheckoutFailure(t *testing.T) {
	repo := t.TempDir()
	s, rec := newSession(t, LocalRepo(repo))
	s.Version = "does-not-exist"
	rec.checkoutErr = errors.New("pathspec did not match")

	err := s.Prepare(context.Background())
	var checkoutErr *CheckoutError
	require.True(t, errors.As(err, &checkoutErr))
	assert.Equal(t, "does-not-exist", checkoutErr.Ref)
	assert.Equal(t, repo, checkoutErr.Dir)
	assert.Contains(t, err.Error(), "does-not-exist")
	assert.Contains(t, err.Error(), repo)

	// bootstrap never runs after a failed checkout
	assert.Len(t, rec.calls, 1)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	fn()
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestCheckOutVersionNamesRepo(t *testing.T) {
	repo := t.TempDir()
	s, _ := newSession(t, LocalRepo(repo))
	s.RepoPath = repo
	s.Version = "v1.2.0"

	out := captureStdout(t, func() {
		require.NoError(t, s.CheckOutVersion(context.Background()))
	})
	assert.Contains(t, out, "Checking out v1.2.0 in "+repo)
}

func TestBootstrapFailure(t *testing.T) {
	repo := t.TempDir()
	s, rec := newSession(t, LocalRepo(repo))
	s.Tasks = []string{"package:tar"}
	rec.taskErrs[BootstrapTask] = errors.New("exit status 1")

	err := s.Run(context.Background())
	var bootErr *BootstrapError
	require.True(t, errors.As(err, &bootErr))
	assert.Equal(t, repo, bootErr.Repo)
	assert.Contains(t, Hint(err), "unreachable")
	assert.Len(t, rec.calls, 2)
}

func TestExecuteTasksRequiresPreparedSession(t *testing.T) {
	s, rec := newSession(t, LocalRepo(t.TempDir()))
	s.Tasks = []string{"package:tar"}

	err := s.ExecuteTasks(context.Background())
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, rec.calls)
}

func TestExecuteTasksFailFast(t *testing.T) {
	repo := t.TempDir()
	s, rec := newSession(t, LocalRepo(repo))
	s.Tasks = []string{"a", "b", "c"}
	rec.taskErrs["b"] = errors.New("exit status 1")
	ctx := context.Background()

	require.NoError(t, s.Prepare(ctx))
	rec.calls = nil

	err := s.ExecuteTasks(ctx)
	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, "b", taskErr.Task)
	assert.Equal(t, []string{"task " + repo + " a", "task " + repo + " b"}, rec.calls)
}

func TestExecuteTasksKeepGoing(t *testing.T) {
	repo := t.TempDir()
	s, rec := newSession(t, LocalRepo(repo))
	s.Tasks = []string{"a", "b", "c", "d"}
	s.FailFast = false
	rec.taskErrs["b"] = errors.New("exit status 1")
	rec.taskErrs["d"] = errors.New("exit status 2")
	ctx := context.Background()

	require.NoError(t, s.Prepare(ctx))
	rec.calls = nil

	err := s.ExecuteTasks(ctx)
	require.Error(t, err)
	assert.Len(t, rec.calls, 4)

	failures := multierr.Errors(err)
	require.Len(t, failures, 2)
	assert.Equal(t, "b", failures[0].(*TaskError).Task)
	assert.Equal(t, "d", failures[1].(*TaskError).Task)
	assert.Equal(t, "check the task output above", Hint(err))
}

func TestExecuteTasksStopsWhenCancelled(t *testing.T) {
	s, rec := newSession(t, LocalRepo(t.TempDir()))
	s.Tasks = []string{"a", "b"}

	require.NoError(t, s.Prepare(context.Background()))
	rec.calls = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.ExecuteTasks(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
}

func TestNewSessionIDs(t *testing.T) {
	a := New(LocalRepo("/srv/repo"))
	b := New(LocalRepo("/srv/repo"))

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, DefaultVersion, a.Version)
	assert.True(t, a.FailFast)
}
