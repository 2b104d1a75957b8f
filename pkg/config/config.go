package config

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultFile is read from the working directory when no --config is passed
const DefaultFile = "packaging.toml"

// Config describes all configuration options
type Config struct {
	Version string `toml:"version" default:"HEAD" usage:"Ref to check out in the packaging repo"`
	Log     struct {
		Level string `toml:"level" default:"info"`
		JSON  bool   `toml:"json" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log"`
	Archive struct {
		Extractor string `toml:"extractor" default:"tar" usage:"How bundles are untarred (tar or native)"`
		Tar       string `toml:"tar" default:"tar" usage:"tar binary used by the tar extractor"`
	} `toml:"archive"`
	TempDir struct {
		Mode string `toml:"mode" default:"mktemp" usage:"How download directories are created (mktemp or native)"`
	} `toml:"tempdir"`
	Git struct {
		Binary string `toml:"binary" default:"git"`
	} `toml:"git"`
	Download struct {
		Timeout time.Duration `toml:"timeout" default:"30m"`
		Quiet   bool          `toml:"quiet" default:"false" usage:"Hide download progress bars"`
	} `toml:"download"`
	Runner struct {
		Kind     string   `toml:"kind" default:"starlark" usage:"Task runner (starlark or command)"`
		Command  []string `toml:"command" usage:"Executable and leading arguments for the command runner, i.e. [\"rake\"]"`
		TaskFile string   `toml:"task_file" default:"tasks.star"`
		Cache    string   `toml:"cache" usage:"Optional file used to cache parsed task lists"`
	} `toml:"runner"`
	Tasks struct {
		KeepGoing bool `toml:"keep_going" default:"false" usage:"Run all tasks even if one of them fails"`
	} `toml:"tasks"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Flags are left to cobra; files and environment variables (PKGCLI_*) are read by Load().
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "PKGCLI",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load is a shortcut for Loader() followed by Load() and Validate()
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	switch cfg.Archive.Extractor {
	case "tar", "native":
	default:
		return eris.Errorf(`Invalid value for archive.extractor: %s (must be tar or native)`, cfg.Archive.Extractor)
	}

	switch cfg.TempDir.Mode {
	case "mktemp", "native":
	default:
		return eris.Errorf(`Invalid value for tempdir.mode: %s (must be mktemp or native)`, cfg.TempDir.Mode)
	}

	switch cfg.Runner.Kind {
	case "starlark":
	case "command":
		if len(cfg.Runner.Command) == 0 {
			return eris.New(`runner.command must be set when runner.kind is "command"`)
		}
	default:
		return eris.Errorf(`Invalid value for runner.kind: %s (must be starlark or command)`, cfg.Runner.Kind)
	}

	if cfg.Version == "" {
		return eris.New("version can't be empty")
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
