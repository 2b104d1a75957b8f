package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	if value, ok := ctx.optionValues[name]; ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func taskCmds(cmds *starlark.List, taskName, base string) ([]TaskCmd, error) {
	result := make([]TaskCmd, 0)
	if cmds == nil {
		return result, nil
	}

	for idx, item := range toValueSlice(cmds) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, TaskCmdScript{TaskName: taskName, Content: value.GoString(), Index: idx})
		case starlark.Tuple, *starlark.List:
			script, err := cmdFromParts(toValueSlice(value.(starlarkIterable)), base)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}
			result = append(result, TaskCmdScript{TaskName: taskName, Content: script, Index: idx})
		case *Task:
			result = append(result, TaskCmdTaskRef{Task: value})
		default:
			return nil, eris.Errorf("unexpected type %s in cmds. Only strings, tuples, lists and tasks are valid", item.Type())
		}
	}

	return result, nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps, skipIfExists, inputs, outputs, cmds *starlark.List
	var env *starlark.Dict

	task := new(Task)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short??", &task.Short, "hidden?", &task.Hidden,
		"desc?", &task.Desc, "deps?", &deps, "base?", &task.Base, "skip_if_exists?", &skipIfExists, "inputs?",
		&inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	}

	if task.Short == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	ctx := getCtx(thread)
	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(ctx, task.Base)

	if task.Deps, err = toStringSlice(deps, "deps"); err != nil {
		return nil, err
	}
	if task.SkipIfExists, err = toStringSlice(skipIfExists, "skip_if_exists"); err != nil {
		return nil, err
	}
	if task.Inputs, err = toStringSlice(inputs, "inputs"); err != nil {
		return nil, err
	}
	if task.Outputs, err = toStringSlice(outputs, "outputs"); err != nil {
		return nil, err
	}

	task.Env = map[string]string{}
	if env != nil {
		for _, item := range env.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", item[0].Type())
			}

			value, ok := item[1].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", item[1].Type(), key.GoString())
			}
			task.Env[key.GoString()] = value.GoString()
		}
	}

	task.Cmds, err = taskCmds(cmds, task.Short, task.Base)
	if err != nil {
		return nil, err
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		warn(thread, "%s: found inputs but no outputs", task.Short)
	}

	if !task.Hidden {
		ctx.tasks = append(ctx.tasks, task)
	}
	return task, nil
}

// RunScript executes a starlark script and returns the declared options. If doConfigure is true, the script's
// configure function is called and the declared tasks are collected and returned.
func RunScript(ctx context.Context, filename, projectRoot string, options map[string]string, doConfigure bool) (TaskList, map[string]ScriptOption, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, nil, err
	}

	if options == nil {
		options = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"ROOT":         StarlarkPath(projectRoot),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExec),
		"task":         starlark.NewBuiltin("task", task),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		tasks:        make([]*Task, 0),
		yamlCache:    make(map[string]interface{}),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "failed to read file %s", filename)
	}

	shortName := simplifyPath(&threadCtx, filename)
	globals, err := starlark.ExecFile(thread, shortName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.Errorf("failed to execute %s:\n%s", shortName, evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed to execute %s", shortName)
	}

	tasks := TaskList{}
	if !doConfigure {
		return tasks, threadCtx.options, nil
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, nil, eris.Errorf("%s did not declare a configure function", shortName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, nil, eris.Errorf("%s did declare a configure value but it's not a function", shortName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, nil, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, eris.New(evalError.Backtrace())
		}
		return nil, nil, eris.Wrapf(err, "failed configure call in %s", shortName)
	}

	for _, task := range threadCtx.tasks {
		tasks[task.Short] = task

		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}
	}

	return tasks, threadCtx.options, nil
}
