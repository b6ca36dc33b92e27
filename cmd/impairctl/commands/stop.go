package commands

import (
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/spf13/cobra"
)

// BuildStopCmd builds the command for stopping the engine
func BuildStopCmd(env runtime.Environment, options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, env, options)
			if err != nil {
				return err
			}
			defer s.Close()

			return ignoreAlreadyInState(s.controller.Stop(cmd.Context()))
		},
	}
}

// BuildResetStatsCmd builds the command for resetting the engine statistics
func BuildResetStatsCmd(env runtime.Environment, options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stats",
		Short: "set the engine statistics to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, env, options)
			if err != nil {
				return err
			}
			defer s.Close()

			return s.controller.ResetStats(cmd.Context())
		},
	}
}
