package commands

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"omemo/internal/app"
	"omemo/internal/services/identity"
)

func initCmd() *cobra.Command {
	var (
		address  string
		deviceID uint32
		relayURL string
		backend  string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and key material of this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.CheckPassphrase(passphrase); err != nil {
				return err
			}
			path, err := homedir.Expand(configFile)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if deviceID == 0 {
				// Device ids are positive 31-bit integers.
				deviceID = rand.Uint32N(math.MaxInt32) + 1
			}
			cfg := &app.Config{
				Address:  address,
				DeviceID: deviceID,
				RelayURL: relayURL,
				Store:    &app.Store{Backend: backend},
			}
			if err := cfg.FixupAndValidate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			wire, err = app.NewWire(cfg, passphrase, nil)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			fp, err := wire.Setup(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Device %s created.\nConfig: %s\nFingerprint: %s\n", wire.Own, path, fp.Pretty())
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "bare address of your account")
	cmd.Flags().Uint32Var(&deviceID, "device-id", 0, "device id (random if omitted)")
	cmd.Flags().StringVar(&relayURL, "relay", "", "keyserver base URL (e.g. http://127.0.0.1:8080)")
	cmd.Flags().StringVar(&backend, "store", app.StoreFile, "key store backend: file or bolt")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	_ = cmd.MarkFlagRequired("address")
	return skipWire(cmd)
}
