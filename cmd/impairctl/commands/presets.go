package commands

import (
	"fmt"

	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/spf13/cobra"
)

// BuildPresetsCmd returns a cobra command that lists the built-in configurations.
// Given the name of a preset, it prints its profile instead.
func BuildPresetsCmd() *cobra.Command {
	summary := false

	cmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list the built-in impairment configurations",
		Long: "Lists the built-in impairment configurations that can be used with the --preset option.\n" +
			"If a name is given, prints the preset as a profile that can be edited and passed with --profile.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				for _, name := range impairment.Presets() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			config, err := impairment.Preset(args[0])
			if err != nil {
				return err
			}

			if summary {
				fmt.Fprint(out, config.Summary())
				return nil
			}

			profile, err := impairment.MarshalProfile(config)
			if err != nil {
				return err
			}
			_, err = out.Write(profile)

			return err
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "print a human readable summary instead of a profile")

	return cmd
}
