package commands

import (
	"fmt"

	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/spf13/cobra"
)

// BuildStatsCmd builds the command that prints the engine state and statistics
func BuildStatsCmd(env runtime.Environment, options *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print the engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, env, options)
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n%s\n", s.controller.State(), s.controller.Snapshot())
			return err
		},
	}
}

// BuildConfigCmd builds the command that prints the configuration stored in the engine
func BuildConfigCmd(env runtime.Environment, options *Options) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the engine configuration",
		Long: "Prints the configuration stored in the engine as a YAML profile\n" +
			"that can be used with the --profile flag.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, env, options)
			if err != nil {
				return err
			}
			defer s.Close()

			config := s.controller.Desired()
			if summary {
				_, err = fmt.Fprint(cmd.OutOrStdout(), config.Summary())
				return err
			}

			profile, err := impairment.MarshalProfile(config)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(profile)
			return err
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print a summary instead of a profile")

	return cmd
}
