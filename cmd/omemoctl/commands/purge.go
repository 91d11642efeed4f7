package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func purgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Replace all key material of this device, dropping every session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge drops every session; pass --yes to confirm")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			fp, err := wire.Purge(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("New fingerprint: %s\n", fp.Pretty())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}
