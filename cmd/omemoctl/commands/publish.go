package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Rotate the signed pre-key if due, then publish bundle and device list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			fp, err := wire.Setup(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Published %s (%s)\n", wire.Own, fp.Pretty())
			return nil
		},
	}
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the signed pre-key now and republish the bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.PreKeys.RotateSignedPreKey(time.Now())
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if _, err := wire.PreKeys.Publish(ctx); err != nil {
				return err
			}
			fmt.Printf("Signed pre-key %d published\n", id)
			return nil
		},
	}
}
