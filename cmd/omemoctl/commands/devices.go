package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices [address]",
		Short: "Show the device list of an account (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := wire.Own.Address
			if len(args) == 1 {
				address = domain.Address(args[0])
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			list, err := wire.Devices.Refresh(ctx, address)
			if err != nil {
				return err
			}
			show := func(ids []domain.DeviceID, status string) error {
				for _, id := range ids {
					device := domain.Device{Address: address, ID: id}
					fp, ok, err := wire.Identity.FingerprintOf(device)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Printf("%-40s %-8s no session yet\n", device, status)
						continue
					}
					state, err := wire.Trust.State(device, fp)
					if err != nil {
						return err
					}
					fmt.Printf("%-40s %-8s %-10s %s\n", device, status, state, fp.Pretty())
				}
				return nil
			}
			if err := show(list.Active, "active"); err != nil {
				return err
			}
			return show(list.Inactive, "inactive")
		},
	}
}
