package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

// send <address>...: encrypt a message for every device of the accounts.
func sendCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "send <address>...",
		Short: "Encrypt a message and print the envelope as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext := []byte(text)
			if text == "" {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				plaintext = b
			}
			recipients := make([]domain.Address, len(args))
			for i, a := range args {
				recipients[i] = domain.Address(a)
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			env, results, err := wire.Messages.Encrypt(ctx, plaintext, recipients...)
			if err != nil {
				return err
			}
			for _, r := range results {
				switch {
				case r.Err == nil:
					fmt.Fprintf(os.Stderr, "%-40s %s\n", r.Device, r.Status)
				case errors.Is(r.Err, domain.ErrUndecidedIdentity):
					fmt.Fprintf(os.Stderr, "%-40s undecided %s (use trust or distrust)\n", r.Device, r.Fingerprint.Pretty())
				default:
					fmt.Fprintf(os.Stderr, "%-40s %s: %v\n", r.Device, r.Status, r.Err)
				}
			}
			if len(env.Headers) == 0 {
				return errors.New("no recipient device could be added")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(env)
		},
	}
	cmd.Flags().StringVarP(&text, "message", "m", "", "message text (read from stdin if omitted)")
	return cmd
}
