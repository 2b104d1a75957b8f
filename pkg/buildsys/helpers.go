package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	tasks        []*Task
	initPhase    bool
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// normalizePath resolves pathList relative to the task file. A leading // refers to the
// project root.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)

	for _, path := range pathList {
		switch {
		case strings.HasPrefix(path, "//"):
			result = filepath.Join(ctx.projectRoot, path[2:])
		case strings.HasPrefix(path, "/"):
			result = filepath.Join(filepath.VolumeName(result), path)
		case filepath.IsAbs(path):
			result = path
		default:
			result = filepath.Join(result, path)
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(ctx *parserCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if strings.HasPrefix(absPath, ctx.projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(ctx.projectRoot)+1:])
	}
	return path
}

func getEnvVars(ctx *parserCtx) []string {
	osEnv := os.Environ()
	shellEnv := make([]string, 0, len(osEnv)+len(ctx.envOverrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overriden entries to avoid conflicts
		if _, present := ctx.envOverrides[parts[0]]; !present {
			shellEnv = append(shellEnv, item)
		}
	}

	for k, v := range ctx.envOverrides {
		shellEnv = append(shellEnv, fmt.Sprintf("%s=%s", k, v))
	}

	return shellEnv
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func toStringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		value, ok := item.(starlark.String)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
		result = append(result, value.GoString())
	}
	return result, nil
}

func toValueSlice(input starlarkIterable) []starlark.Value {
	result := make([]starlark.Value, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		result = append(result, item)
	}
	return result
}

const shellSpecialChars = " \t\n$'\"\\`;&|<>()*?[]#~{}!"

func shellQuote(value string) string {
	if value != "" && !strings.ContainsAny(value, shellSpecialChars) {
		return value
	}

	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// cmdFromParts turns a command given as a list of arguments into a shell snippet.
// Leading NAME=value items become variable assignments for the command.
func cmdFromParts(parts []starlark.Value, base string) (string, error) {
	words := make([]string, 0, len(parts))
	inAssigns := true

	for _, part := range parts {
		var value string

		switch part := part.(type) {
		case starlark.String:
			value = part.GoString()
		case StarlarkPath:
			value = string(part)
			if filepath.IsAbs(value) {
				// absolute paths cause issues on Windows
				if rel, err := filepath.Rel(base, value); err == nil {
					value = rel
				}
			}
			value = filepath.ToSlash(value)
		default:
			return "", eris.Errorf("found argument of type %s but only strings and paths are supported: %s", part.Type(), part.String())
		}

		if inAssigns {
			pos := strings.Index(value, "=")
			if pos > 0 && !strings.ContainsAny(value[:pos], shellSpecialChars) {
				words = append(words, value[:pos+1]+shellQuote(value[pos+1:]))
				continue
			}
			inAssigns = false
		}

		words = append(words, shellQuote(value))
	}

	if inAssigns {
		return "", eris.New("command contains only variable assignments")
	}

	return strings.Join(words, " "), nil
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(ctx.ctx).Info().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(ctx.ctx).Warn().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}
