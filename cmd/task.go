package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MosesMendoza/packaging-cli/pkg"
	"github.com/MosesMendoza/packaging-cli/pkg/buildsys"
	"github.com/MosesMendoza/packaging-cli/pkg/logging"
)

func listTasks(out io.Writer, taskList buildsys.TaskList) {
	names := taskList.Names()
	sort.Strings(names)

	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	fmt.Fprintln(out, "Available tasks:")
	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Fprintf(out, lineFmt, name+":", taskList[name].Desc)
	}
}

// runTaskFile runs tasks from the tasks.star closest to start. Without tasks, the
// available tasks are listed instead.
func runTaskFile(ctx context.Context, out io.Writer, start string, args []string, dryRun, force bool) error {
	taskPath, err := pkg.FindUpwards(start, buildsys.DefaultTaskFile)
	if err != nil {
		return err
	}

	tasks, options := splitTaskArgs(args)
	root := filepath.Dir(taskPath)

	taskList, _, err := buildsys.RunScript(ctx, taskPath, root, options, true)
	if err != nil {
		return eris.Wrap(err, "Failed to parse tasks")
	}

	if len(tasks) == 0 {
		listTasks(out, taskList)
		return nil
	}

	for _, name := range tasks {
		if err := buildsys.RunTask(ctx, root, name, taskList, dryRun, force); err != nil {
			return eris.Wrapf(err, "Failed task %s", name)
		}
	}
	return nil
}

var taskCmd = &cobra.Command{
	Use:   "task [task...] [KEY=VALUE...]",
	Short: "Run tasks from the nearest tasks.star",
	Long:  `This command parses the first tasks.star file it finds in the working directory or above and executes the given tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger := newLogger(cfg, NewConsoleWriter())
		ctx := logging.WithLogger(cmd.Context(), &logger)

		if exe, err := os.Executable(); err == nil {
			buildsys.HelperBinary = exe
		}

		wd, err := os.Getwd()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to retrieve the current working directory")
		}

		if err := runTaskFile(ctx, os.Stdout, wd, args, dryRun, force); err != nil {
			logger.Fatal().Err(err).Msg("Task failed")
		}
		return nil
	},
}

func init() {
	taskCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	taskCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")

	rootCmd.AddCommand(taskCmd)
}
