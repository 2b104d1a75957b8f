package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MosesMendoza/packaging-cli/pkg/shell"
)

func TestDownload(t *testing.T) {
	payload := strings.Repeat("bundle-bytes", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bundles/proj.bundle", r.URL.Path)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "proj.bundle")
	d := NewDownloader(0, true)
	require.NoError(t, d.Download(context.Background(), srv.URL+"/bundles/proj.bundle", dest))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(content))
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "proj.bundle")
	d := NewDownloader(0, true)
	err := d.Download(context.Background(), srv.URL+"/missing.bundle", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(0, true)
	require.Error(t, d.Download(ctx, srv.URL+"/proj.bundle", filepath.Join(t.TempDir(), "proj.bundle")))
}

type fakeRunner struct {
	args   []string
	result shell.Result
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (shell.Result, error) {
	f.args = append([]string{name}, args...)
	res := f.result
	res.Args = f.args
	return res, nil
}

func TestMktempArguments(t *testing.T) {
	runner := &fakeRunner{result: shell.Result{Stdout: "/tmp/pkgAbC123\n"}}
	m := &Mktemp{Runner: runner}

	dir, err := m.MakeTempDir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pkgAbC123", dir)
	assert.Equal(t, []string{"mktemp", "-d", "-t", "pkgXXXXXX"}, runner.args)
}

func TestMktempFailure(t *testing.T) {
	runner := &fakeRunner{result: shell.Result{ExitCode: 1, Stderr: "mktemp: failed"}}
	m := &Mktemp{Runner: runner}

	_, err := m.MakeTempDir(context.Background())
	require.Error(t, err)
}

func TestMktempEmptyOutput(t *testing.T) {
	m := &Mktemp{Runner: &fakeRunner{}}

	_, err := m.MakeTempDir(context.Background())
	require.Error(t, err)
}

func TestMktempReal(t *testing.T) {
	if _, err := exec.LookPath("mktemp"); err != nil {
		t.Skip("mktemp is not available")
	}

	m := &Mktemp{Runner: &shell.ExecRunner{}}
	first, err := m.MakeTempDir(context.Background())
	require.NoError(t, err)
	defer os.RemoveAll(first)

	second, err := m.MakeTempDir(context.Background())
	require.NoError(t, err)
	defer os.RemoveAll(second)

	assert.NotEqual(t, first, second)
	info, err := os.Stat(first)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOSTempDir(t *testing.T) {
	dir, err := OSTempDir{}.MakeTempDir(context.Background())
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "pkg"))
}
