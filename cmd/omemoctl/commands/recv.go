package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"omemo/internal/domain"
)

// recv --from <address> [file]: decrypt an envelope addressed to this device.
func recvCmd() *cobra.Command {
	var from, replyPath string
	cmd := &cobra.Command{
		Use:   "recv --from <address> [envelope.json]",
		Short: "Decrypt an envelope (read from stdin if no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var env domain.Envelope
			if err := json.NewDecoder(in).Decode(&env); err != nil {
				return fmt.Errorf("reading envelope: %w", err)
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			msg, ok, err := wire.Messages.Decrypt(ctx, domain.Address(from), env)
			if msg.Reply != nil {
				if werr := writeReply(replyPath, msg.Sender, *msg.Reply); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("message is not encrypted for %s", wire.Own)
			}
			state, err := wire.Trust.State(msg.Sender, msg.Fingerprint)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "From %s (%s, %s)\n", msg.Sender, state, msg.Fingerprint.Pretty())
			if msg.Plaintext == nil {
				fmt.Printf("key transport: %s\n", base64.StdEncoding.EncodeToString(msg.Key))
				return nil
			}
			_, err = os.Stdout.Write(msg.Plaintext)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "bare address of the sender")
	cmd.Flags().StringVar(&replyPath, "reply", "", "write the session reply envelope here instead of stderr")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

// writeReply saves the envelope Decrypt wants delivered back to the sender.
func writeReply(path string, to domain.Device, env domain.Envelope) error {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "Deliver this reply to %s:\n%s\n", to, b)
		return nil
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Reply for %s written to %s\n", to, path)
	return nil
}
