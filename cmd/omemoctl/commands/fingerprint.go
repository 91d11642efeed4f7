package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint [address:device]",
		Short: "Print the own fingerprint, or the last one seen for a device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fp, err := wire.Identity.Fingerprint()
				if err != nil {
					return err
				}
				fmt.Printf("%s\nFingerprint: %s\n", wire.Own, fp.Pretty())
				return nil
			}
			device, err := wire.Keys.DeviceFromAddress(args[0])
			if err != nil {
				return err
			}
			fp, ok, err := wire.Identity.FingerprintOf(device)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no identity known for %s", device)
			}
			state, err := wire.Trust.State(device, fp)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\nFingerprint: %s\n", device, state, fp.Pretty())
			return nil
		},
	}
	return cmd
}
