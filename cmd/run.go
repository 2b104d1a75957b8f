package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MosesMendoza/packaging-cli/pkg/archive"
	"github.com/MosesMendoza/packaging-cli/pkg/buildsys"
	"github.com/MosesMendoza/packaging-cli/pkg/config"
	"github.com/MosesMendoza/packaging-cli/pkg/fetch"
	"github.com/MosesMendoza/packaging-cli/pkg/logging"
	"github.com/MosesMendoza/packaging-cli/pkg/session"
	"github.com/MosesMendoza/packaging-cli/pkg/shell"
	"github.com/MosesMendoza/packaging-cli/pkg/vcs"
)

type runOptions struct {
	repo         string
	bundle       string
	remoteBundle string
	version      string
	keepGoing    bool
	dryRun       bool
	force        bool
}

// splitTaskArgs separates task names from KEY=VALUE options
func splitTaskArgs(args []string) ([]string, map[string]string) {
	tasks := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > 0 {
			options[part[:pos]] = part[pos+1:]
		} else {
			tasks = append(tasks, part)
		}
	}
	return tasks, options
}

func newSession(cfg *config.Config, opts runOptions, args []string) (*session.Session, error) {
	source, err := session.SourceFrom(opts.repo, opts.bundle, opts.remoteBundle)
	if err != nil {
		return nil, err
	}

	tasks, options := splitTaskArgs(args)
	tools := &shell.ExecRunner{}

	s := session.New(source)
	s.Tasks = tasks
	s.Version = cfg.Version
	if opts.version != "" {
		s.Version = opts.version
	}
	s.FailFast = !(opts.keepGoing || cfg.Tasks.KeepGoing)

	s.VCS = &vcs.Git{Runner: tools, Binary: cfg.Git.Binary}
	s.Fetcher = fetch.NewDownloader(cfg.Download.Timeout, cfg.Download.Quiet)

	switch cfg.Archive.Extractor {
	case "native":
		s.Extractor = &archive.Native{Quiet: cfg.Download.Quiet}
	default:
		s.Extractor = &archive.TarCommand{Runner: tools, Binary: cfg.Archive.Tar}
	}

	switch cfg.TempDir.Mode {
	case "native":
		s.TempDirs = fetch.OSTempDir{}
	default:
		s.TempDirs = &fetch.Mktemp{Runner: tools}
	}

	switch cfg.Runner.Kind {
	case "command":
		s.Runner = &buildsys.CommandRunner{
			Runner:  &shell.ExecRunner{Stream: true},
			Command: cfg.Runner.Command,
		}
	default:
		s.Runner = &buildsys.Runner{
			TaskFile:  cfg.Runner.TaskFile,
			Options:   options,
			DryRun:    opts.dryRun,
			Force:     opts.force,
			CachePath: cfg.Runner.Cache,
		}
	}

	return s, nil
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run [task...] [KEY=VALUE...]",
	Short: "Prepare a packaging repository and run tasks in it",
	Long: `Prepares the packaging repository given by --repo, --bundle or --remote-bundle
(checked in that order), checks out --version, runs the package:bootstrap task and
then each given task. KEY=VALUE arguments are passed to the task file as options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger := newLogger(cfg, NewConsoleWriter())
		ctx := logging.WithLogger(cmd.Context(), &logger)

		if exe, err := os.Executable(); err == nil {
			buildsys.HelperBinary = exe
		} else {
			logger.Warn().Err(err).Msg("Could not locate own executable, using system mv, rm and mkdir")
		}

		s, err := newSession(cfg, runFlags, args)
		if err != nil {
			logger.Fatal().Err(err).Str("hint", session.Hint(err)).Msg("Invalid invocation")
		}

		logger.Debug().
			Str("session", s.ID).
			Str("source", s.Source.String()).
			Str("version", s.Version).
			Strs("tasks", s.Tasks).
			Msg("Starting session")

		if err := s.Run(ctx); err != nil {
			logger.Fatal().Err(err).Str("hint", session.Hint(err)).Msg("Packaging failed")
		}

		return nil
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.repo, "repo", "", "path to an existing packaging repository")
	flags.StringVar(&runFlags.bundle, "bundle", "", "path to a git bundle, optionally tar-compressed")
	flags.StringVar(&runFlags.remoteBundle, "remote-bundle", "", "http(s) URL of a git bundle")
	flags.StringVar(&runFlags.version, "version", "", "ref to check out (defaults to the configured version, HEAD)")
	flags.BoolVar(&runFlags.keepGoing, "keep-going", false, "run every task even if an earlier one failed")
	flags.BoolVarP(&runFlags.dryRun, "dry", "n", false, "dry run; only print the commands, don't execute anything")
	flags.BoolVarP(&runFlags.force, "force", "f", false, "force build; always execute the passed steps even if they don't have to run")

	rootCmd.AddCommand(runCmd)
}
