package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MosesMendoza/packaging-cli/pkg/archive"
	"github.com/MosesMendoza/packaging-cli/pkg/buildsys"
	"github.com/MosesMendoza/packaging-cli/pkg/config"
	"github.com/MosesMendoza/packaging-cli/pkg/fetch"
	"github.com/MosesMendoza/packaging-cli/pkg/session"
)

func TestSplitTaskArgs(t *testing.T) {
	tasks, options := splitTaskArgs([]string{"package:tar", "VERSION=1.2.0", "package:deb", "EMPTY=", "=odd"})

	assert.Equal(t, []string{"package:tar", "package:deb", "=odd"}, tasks)
	assert.Equal(t, map[string]string{"VERSION": "1.2.0", "EMPTY": ""}, options)
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	return cfg
}

func TestNewSessionDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	s, err := newSession(cfg, runOptions{repo: "/srv/repo", bundle: "/tmp/p.bundle"}, []string{"package:tar", "A=b"})
	require.NoError(t, err)

	assert.Equal(t, session.LocalRepo("/srv/repo"), s.Source)
	assert.Equal(t, []string{"package:tar"}, s.Tasks)
	assert.Equal(t, "HEAD", s.Version)
	assert.True(t, s.FailFast)

	assert.IsType(t, &archive.TarCommand{}, s.Extractor)
	assert.IsType(t, &fetch.Mktemp{}, s.TempDirs)

	runner, ok := s.Runner.(*buildsys.Runner)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"A": "b"}, runner.Options)
	assert.Equal(t, buildsys.DefaultTaskFile, runner.TaskFile)
}

func TestNewSessionFromConfig(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Archive.Extractor = "native"
	cfg.TempDir.Mode = "native"
	cfg.Runner.Kind = "command"
	cfg.Runner.Command = []string{"bundle", "exec", "rake"}
	cfg.Tasks.KeepGoing = true

	s, err := newSession(cfg, runOptions{remoteBundle: "https://example.com/p.bundle", version: "v1.2.0"}, nil)
	require.NoError(t, err)

	assert.Equal(t, session.RemoteBundle("https://example.com/p.bundle"), s.Source)
	assert.Equal(t, "v1.2.0", s.Version)
	assert.False(t, s.FailFast)
	assert.IsType(t, &archive.Native{}, s.Extractor)
	assert.IsType(t, fetch.OSTempDir{}, s.TempDirs)

	runner, ok := s.Runner.(*buildsys.CommandRunner)
	require.True(t, ok)
	assert.Equal(t, []string{"bundle", "exec", "rake"}, runner.Command)
}

func TestNewSessionWithoutSource(t *testing.T) {
	_, err := newSession(defaultConfig(t), runOptions{}, []string{"package:tar"})
	require.Error(t, err)
	assert.NotEmpty(t, session.Hint(err))
}

func TestRunTaskFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested", "dir")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, buildsys.DefaultTaskFile), []byte(`
NAME = option("name", default = "world")

def configure():
    task("hello", desc = "Writes a greeting", cmds = ["echo hello " + NAME + " > hello.txt"])
    task("package:bootstrap", desc = "Bootstraps")
`), 0o644))

	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, runTaskFile(ctx, &out, nested, nil, false, false))
	assert.Contains(t, out.String(), "Available tasks:")
	assert.Contains(t, out.String(), " * hello:")
	assert.Contains(t, out.String(), "Writes a greeting")

	require.NoError(t, runTaskFile(ctx, &out, nested, []string{"hello", "name=packager"}, false, false))
	content, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello packager\n", string(content))

	assert.Error(t, runTaskFile(ctx, &out, nested, []string{"missing"}, false, false))
}

func TestRunTaskFileWithoutTaskFile(t *testing.T) {
	var out bytes.Buffer
	err := runTaskFile(context.Background(), &out, t.TempDir(), nil, false, false)
	assert.True(t, eris.Is(err, os.ErrNotExist))
}

func TestConsoleWriter(t *testing.T) {
	var out bytes.Buffer
	writer := &ConsoleWriter{Out: &out}
	logger := zerolog.New(writer)

	logger.Info().Str("task", "package:tar").Bool("command", true).Msg("tar -czf out.tar.gz src")
	assert.Contains(t, out.String(), "package:tar: $ tar -czf out.tar.gz src")

	out.Reset()
	logger.Error().Err(eris.New("exit status 1")).Str("hint", "check your network access").Msg("Packaging failed")
	assert.Contains(t, out.String(), "Error: Packaging failed")
	assert.Contains(t, out.String(), "exit status 1")
	assert.Contains(t, out.String(), "Hint:")
	assert.Contains(t, out.String(), "check your network access")

	_, err := writer.Write([]byte("not json"))
	assert.Error(t, err)
}

func TestPosixHelpers(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	require.Error(t, makeDirs([]string{nested}, false))
	require.NoError(t, makeDirs([]string{nested}, true))
	assert.DirExists(t, nested)

	src := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, moveItems([]string{src, nested}))
	assert.FileExists(t, filepath.Join(nested, "file.txt"))

	renamed := filepath.Join(dir, "renamed.txt")
	require.NoError(t, moveItems([]string{filepath.Join(nested, "file.txt"), renamed}))
	assert.FileExists(t, renamed)

	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))
	assert.Error(t, moveItems([]string{renamed, other, filepath.Join(dir, "missing")}))
	assert.Error(t, moveItems([]string{renamed}))

	assert.Error(t, removeItems([]string{filepath.Join(dir, "a")}, false, false))
	require.NoError(t, removeItems([]string{filepath.Join(dir, "a"), renamed}, true, false))
	assert.NoDirExists(t, filepath.Join(dir, "a"))
	assert.NoFileExists(t, renamed)

	assert.Error(t, removeItems([]string{renamed}, false, false))
	assert.NoError(t, removeItems([]string{renamed}, false, true))
}
