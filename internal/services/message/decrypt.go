package message

import (
	"context"
	"errors"
	"fmt"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

// Decrypt opens env, which sender sent, for the local device. ok is false
// when env carries no key for local. Each key addressed to local is tried
// until one unwraps; a body that then fails to authenticate is fatal.
//
// A key transport message yields the transported key and no plaintext.
func Decrypt(
	ctx context.Context,
	local domain.Device,
	sessions domain.SessionService,
	sender domain.Address,
	env domain.Envelope,
) (domain.DecryptedMessage, bool, error) {
	from := domain.Device{Address: sender, ID: env.SenderDeviceID}
	var (
		errs  []error
		found bool
	)
	for _, h := range env.Headers {
		if h.DeviceID != local.ID {
			continue
		}
		found = true
		if err := ctx.Err(); err != nil {
			return domain.DecryptedMessage{}, true, err
		}
		payload, info, err := sessions.DecryptKey(from, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msg := domain.DecryptedMessage{
			Sender:         from,
			Fingerprint:    info.Fingerprint,
			PreKeyConsumed: info.PreKeyConsumed,
			PreKeyMessage:  h.IsPreKeyMessage,
		}
		switch len(payload) {
		case crypto.MessageKeySize + crypto.MessageTagSize:
			key, tag := payload[:crypto.MessageKeySize], payload[crypto.MessageKeySize:]
			pt, err := crypto.OpenBody(key, env.IV, env.Body, tag)
			if err != nil {
				return msg, true, err
			}
			msg.Key = key
			msg.Plaintext = pt
		case crypto.MessageKeySize:
			msg.Key = payload
		default:
			errs = append(errs, fmt.Errorf("%w: unwrapped %d bytes", domain.ErrInvalidKey, len(payload)))
			continue
		}
		return msg, true, nil
	}
	if !found {
		return domain.DecryptedMessage{}, false, nil
	}
	return domain.DecryptedMessage{}, true, fmt.Errorf("message: no key for %s could be unwrapped: %w", local, errors.Join(errs...))
}
