package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the daybook release, set at build time with
// -ldflags "-X github.com/mesh-intelligence/daybook/internal/cli.Version=...".
var Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/daybook"

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daybook version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "daybook v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
