package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/MosesMendoza/packaging-cli/pkg/config"
)

var (
	configFile string
	logLevel   string
	jsonLog    bool
)

var rootCmd = &cobra.Command{
	Use:   "packaging-cli",
	Short: "Prepares packaging repositories and runs their tasks",
	Long: `This command checks out a packaging repository (from a local checkout, a local
git bundle or a bundle downloaded over HTTP) and runs the tasks it defines.
It also bundles portable mv, rm and mkdir implementations for task scripts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (default "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error or fatal)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json", false, "log JSON lines instead of console messages")
}

// loadConfig reads the configuration file and environment and applies the persistent flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var files []string
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, eris.Wrapf(err, "Failed to open config file %s", configFile)
		}
		files = []string{configFile}
	}

	cfg, loader := config.Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("json") {
		cfg.Log.JSON = jsonLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console io.Writer) zerolog.Logger {
	var out io.Writer
	if cfg.Log.JSON {
		zerolog.ErrorMarshalFunc = func(err error) interface{} {
			return eris.ToJSON(err, debugEnabled())
		}
		out = os.Stderr
	} else {
		out = console
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}
