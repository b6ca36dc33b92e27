package commands

import (
	"fmt"

	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/spf13/cobra"
)

// BuildStartCmd builds the command for starting the engine
func BuildStartCmd(env runtime.Environment, options *Options) *cobra.Command {
	mechanisms := &mechanismFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the engine",
		Long: "Starts the engine with the configuration stored in the engine, modified by the\n" +
			"profile or preset and the flags given. Setting a parameter of a mechanism enables it.",
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

			if err := s.controller.Start(cmd.Context(), config); err != nil {
				return ignoreAlreadyInState(err)
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), config.Summary())
			return err
		},
	}
	mechanisms.register(cmd.Flags())

	return cmd
}
