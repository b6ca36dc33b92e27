package commands

import (
	"fmt"

	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/spf13/cobra"
)

// BuildApplyCmd builds the command for storing a configuration in the engine without starting it
func BuildApplyCmd(env runtime.Environment, options *Options) *cobra.Command {
	mechanisms := &mechanismFlags{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "store a configuration in the engine",
		Long: "Stores a configuration in the engine without starting it.\n" +
			"The engine must be stopped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, env, options)
			if err != nil {
				return err
			}
			defer s.Close()

			config, err := mechanisms.config(cmd.Flags(), s.controller.Desired())
			if err != nil {
				return err
			}

			if err := s.controller.SubmitConfig(cmd.Context(), config); err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), config.Summary())
			return err
		},
	}
	mechanisms.register(cmd.Flags())

	return cmd
}
