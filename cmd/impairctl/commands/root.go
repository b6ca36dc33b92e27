// Package commands implements the commands of the impairctl CLI
package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/impairlab/impairctl/internal/version"
	"github.com/impairlab/impairctl/pkg/engine"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/impairlab/impairctl/pkg/runtime/profiler"
	"github.com/impairlab/impairctl/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Environment variables used as defaults for the flags not given in the command line
const (
	EngineEnvVar   = "IMPAIRCTL_ENGINE"
	TimeoutEnvVar  = "IMPAIRCTL_TIMEOUT"
	LogLevelEnvVar = "IMPAIRCTL_LOG_LEVEL"
)

// Options are the settings shared by all commands
type Options struct {
	Engine    string
	Timeout   time.Duration
	Wait      time.Duration
	LogLevel  string
	LogFormat string
	EnvFile   string
	// TraceRequests writes the spans of the requests to the engine to the error output
	TraceRequests bool
	Profiler      profiler.Config
}

// load reads the env file, if any, and sets the options not given as flags
// from the environment
func (o *Options) load(flags *pflag.FlagSet) error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	if !flags.Changed("engine") {
		o.Engine = utils.GetStringEnvVar(EngineEnvVar, o.Engine)
	}
	if !flags.Changed("timeout") {
		o.Timeout = utils.GetDurationEnvVar(TimeoutEnvVar, o.Timeout)
	}
	if !flags.Changed("log-level") {
		o.LogLevel = utils.GetStringEnvVar(LogLevelEnvVar, o.LogLevel)
	}

	switch o.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", o.LogFormat)
	}

	if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

// newLogger returns a logger writing to out with the level and format in the options
func (o *Options) newLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(o.LogLevel)
	if err == nil {
		logger.SetLevel(level)
	}

	if o.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// BuildRootCmd builds the root command with the persistent flags and all the subcommands
func BuildRootCmd(env runtime.Environment) *cobra.Command {
	options := &Options{}
	var profiling *profiler.Session
	stopTracing := func(context.Context) error { return nil }

	rootCmd := &cobra.Command{
		Use:   "impairctl",
		Short: "Control a network impairment engine",
		Long: "A command for controlling a network impairment engine.\n" +
			"It configures the impairments applied to the packets matching a filter,\n" +
			"starts and stops the engine and reports its statistics.",
		Version: version.Get(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := options.load(cmd.Flags()); err != nil {
				return err
			}

			var err error
			profiling, err = profiler.Start(options.Profiler)
			if err != nil {
				return fmt.Errorf("starting profiler: %w", err)
			}

			if options.TraceRequests {
				stopTracing, err = startRequestTracing(cmd.ErrOrStderr())
				if err != nil {
					_ = profiling.Close()
					return err
				}
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if err := stopTracing(cmd.Context()); err != nil {
				return fmt.Errorf("stopping request tracing: %w", err)
			}

			if err := profiling.Close(); err != nil {
				return fmt.Errorf("stopping profiler: %w", err)
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&options.Engine, "engine", engine.DefaultBaseURL,
		"base URL of the engine control API (env "+EngineEnvVar+")")
	flags.DurationVar(&options.Timeout, "timeout", engine.DefaultTimeout,
		"timeout for each request to the engine (env "+TimeoutEnvVar+")")
	flags.DurationVar(&options.Wait, "wait", 0, "time to wait for the engine to become reachable")
	flags.StringVar(&options.LogLevel, "log-level", "warning", "log level (env "+LogLevelEnvVar+")")
	flags.StringVar(&options.LogFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&options.EnvFile, "env-file", "", "file with environment variables to load")
	flags.BoolVar(&options.TraceRequests, "trace-requests", false, "print the spans of the requests to the engine")
	flags.BoolVar(&options.Profiler.CPU.Enabled, "cpu-profile", false, "profile CPU usage")
	flags.StringVar(&options.Profiler.CPU.FileName, "cpu-profile-file", "cpu.pprof", "CPU profiling output file")
	flags.BoolVar(&options.Profiler.Memory.Enabled, "mem-profile", false, "profile memory usage")
	flags.StringVar(&options.Profiler.Memory.FileName, "mem-profile-file", "mem.pprof",
		"memory profiling output file")
	flags.IntVar(&options.Profiler.Memory.Rate, "mem-profile-rate", 0, "memory profiling rate")
	flags.BoolVar(&options.Profiler.Trace.Enabled, "trace", false, "trace execution")
	flags.StringVar(&options.Profiler.Trace.FileName, "trace-file", "trace.out", "tracing output file")

	rootCmd.AddCommand(BuildStartCmd(env, options))
	rootCmd.AddCommand(BuildApplyCmd(env, options))
	rootCmd.AddCommand(BuildStopCmd(env, options))
	rootCmd.AddCommand(BuildStatsCmd(env, options))
	rootCmd.AddCommand(BuildResetStatsCmd(env, options))
	rootCmd.AddCommand(BuildConfigCmd(env, options))
	rootCmd.AddCommand(BuildWatchCmd(env, options))
	rootCmd.AddCommand(BuildPresetsCmd())

	return rootCmd
}
