package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njyeung/netplay/internal/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the version, commit, and build date of netplay.",
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), version.JSON())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output version information as JSON")
	return cmd
}
