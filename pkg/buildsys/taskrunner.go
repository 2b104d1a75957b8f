package buildsys

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg/shell"
)

// DefaultTaskFile is looked up in the repository root
const DefaultTaskFile = "tasks.star"

// Runner runs tasks declared in a repository's task file
type Runner struct {
	TaskFile  string
	Options   map[string]string
	DryRun    bool
	Force     bool
	CachePath string
}

func sameOptions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}

	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func (r *Runner) taskFile(dir string) string {
	name := r.TaskFile
	if name == "" {
		name = DefaultTaskFile
	}

	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func (r *Runner) cachedTasks(ctx context.Context, taskFile string) TaskList {
	cacheInfo, err := os.Stat(r.CachePath)
	if err != nil {
		return nil
	}

	scriptInfo, err := os.Stat(taskFile)
	if err != nil || !cacheInfo.ModTime().After(scriptInfo.ModTime()) {
		return nil
	}

	cachedFile, options, tasks, err := ReadCache(r.CachePath)
	if err != nil {
		log(ctx).Warn().Err(err).Msg("Ignoring unreadable task cache")
		return nil
	}

	if cachedFile != taskFile || !sameOptions(options, r.Options) {
		return nil
	}

	log(ctx).Debug().Str("path", r.CachePath).Msg("Using cached task list")
	return tasks
}

// Load parses the task file inside dir (or reads it from the cache)
func (r *Runner) Load(ctx context.Context, dir string) (TaskList, error) {
	taskFile := r.taskFile(dir)

	if r.CachePath != "" {
		if tasks := r.cachedTasks(ctx, taskFile); tasks != nil {
			return tasks, nil
		}
	}

	tasks, _, err := RunScript(ctx, taskFile, dir, r.Options, true)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to load tasks from %s", taskFile)
	}

	if r.CachePath != "" {
		if err := WriteCache(r.CachePath, taskFile, r.Options, tasks); err != nil {
			log(ctx).Warn().Err(err).Msg("Failed to write task cache")
		}
	}

	return tasks, nil
}

// RunTask loads the task file in dir and runs the named task
func (r *Runner) RunTask(ctx context.Context, dir, name string) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	tasks, err := r.Load(ctx, dir)
	if err != nil {
		return err
	}

	return RunTask(ctx, dir, name, tasks, r.DryRun, r.Force)
}

// CommandRunner hands tasks to an external task runner such as rake. The task name is
// appended to Command and the process runs inside the repository.
type CommandRunner struct {
	Runner  shell.Runner
	Command []string
}

func (c *CommandRunner) RunTask(ctx context.Context, dir, name string) error {
	if len(c.Command) == 0 {
		return eris.New("No task runner command configured")
	}

	args := make([]string, 0, len(c.Command))
	args = append(args, c.Command[1:]...)
	args = append(args, name)

	result, err := c.Runner.Run(ctx, dir, c.Command[0], args...)
	if err != nil {
		return err
	}

	if err := result.Err(); err != nil {
		return eris.Wrapf(err, "Task %s failed", name)
	}
	return nil
}
