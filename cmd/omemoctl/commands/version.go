package commands

import (
	"fmt"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return skipWire(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("omemoctl %s\n", versioninfo.Short())
		},
	})
}
