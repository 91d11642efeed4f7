package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

// trustCmd builds "trust" or, with trusted false, "distrust".
func trustCmd(trusted bool) *cobra.Command {
	use, short := "trust", "Trust the identity of a device"
	if !trusted {
		use, short = "distrust", "Distrust the identity of a device"
	}
	return &cobra.Command{
		Use:   use + " <address:device> <fingerprint>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := wire.Keys.DeviceFromAddress(args[0])
			if err != nil {
				return err
			}
			// Fingerprints are often copied in their spaced form.
			fp := domain.Fingerprint(strings.ToLower(strings.Join(strings.Fields(args[1]), "")))
			if known, ok, err := wire.Identity.FingerprintOf(device); err != nil {
				return err
			} else if ok && known != fp {
				return fmt.Errorf("%s currently uses fingerprint %s", device, known.Pretty())
			}
			if trusted {
				err = wire.Trust.Trust(device, fp)
			} else {
				err = wire.Trust.Distrust(device, fp)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %sed\n", device, use)
			return nil
		},
	}
}
