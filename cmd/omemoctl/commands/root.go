package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"omemo/internal/app"
)

const passphraseEnv = "OMEMO_PASSPHRASE"

var (
	configFile string
	passphrase string
	timeout    time.Duration

	wire *app.Wire
)

// Execute runs the omemoctl root command.
func Execute() error {
	root := &cobra.Command{
		Use:          "omemoctl",
		Short:        "Multi-device end-to-end encryption keys and messages",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				passphrase = os.Getenv(passphraseEnv)
			}
			if cmd.Annotations["wire"] == "skip" {
				return nil
			}
			cfg, err := app.LoadFile(configFile)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, passphrase, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "~/.omemo/omemo.toml", "configuration file")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity (or $"+passphraseEnv+")")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "keyserver timeout")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		publishCmd(),
		rotateCmd(),
		devicesCmd(),
		trustCmd(true),
		trustCmd(false),
		sendCmd(),
		recvCmd(),
		purgeCmd(),
		versionCmd(),
	)
	return root.Execute()
}

// withTimeout returns the context keyserver calls of cmd run under.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// skipWire marks a command that builds its own dependencies.
func skipWire(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations["wire"] = "skip"
	return cmd
}
