package message

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
	"omemo/internal/instrument"
)

// Service encrypts for whole accounts and decrypts for the local device.
//
// High-level flow:
//   - Encrypt: refresh the device lists of every recipient account and of
//     the own account, wrap the key for each active device other than the
//     local one, and return the envelope with one result per device.
//   - Decrypt: open the envelope, remember when the sending device was last
//     heard from and, if a one-time pre-key was used up, publish a
//     replenished bundle. A handshake is answered with a ratchet update, a
//     message from a device without a session with a repair.
type Service struct {
	own      domain.Device
	sessions domain.SessionService
	trust    domain.TrustService
	devices  domain.DeviceListService
	prekeys  domain.PreKeyService
	log      *logging.Logger

	concurrency int
	now         func() time.Time
}

// New constructs a message Service for the local device own.
func New(
	own domain.Device,
	sessions domain.SessionService,
	trust domain.TrustService,
	devices domain.DeviceListService,
	prekeys domain.PreKeyService,
	concurrency int,
	log *logging.Logger,
) *Service {
	return &Service{
		own:         own,
		sessions:    sessions,
		trust:       trust,
		devices:     devices,
		prekeys:     prekeys,
		log:         log,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Encrypt encrypts plaintext for every active device of recipients and for
// the other devices of the own account.
func (s *Service) Encrypt(
	ctx context.Context,
	plaintext []byte,
	recipients ...domain.Address,
) (domain.Envelope, []domain.RecipientResult, error) {
	devices, err := s.recipientDevices(ctx, recipients)
	if err != nil {
		return domain.Envelope{}, nil, err
	}
	b, err := NewBuilder(s.own, s.sessions, s.trust, plaintext)
	if err != nil {
		return domain.Envelope{}, nil, err
	}
	b.SetConcurrency(s.concurrency)
	b.SetLogger(s.log)

	results := b.AddRecipients(ctx, devices)
	env, err := b.Finish()
	if err != nil {
		return domain.Envelope{}, results, err
	}
	instrument.MessageEncrypted()
	s.log.Debugf("Encrypted message for %d of %d devices", len(env.Headers), len(devices))
	return env, results, nil
}

// recipientDevices lists the devices a message to recipients goes to. A
// failure to refresh another account's list fails the message; the own
// account's list is best effort.
func (s *Service) recipientDevices(ctx context.Context, recipients []domain.Address) ([]domain.Device, error) {
	now := s.now()
	var out []domain.Device
	seen := map[domain.Address]bool{}
	for _, addr := range recipients {
		if seen[addr] || addr == s.own.Address {
			continue
		}
		seen[addr] = true
		devs, err := s.devices.ActiveDevices(ctx, addr, now)
		if err != nil {
			return nil, err
		}
		out = append(out, devs...)
	}
	own, err := s.devices.ActiveDevices(ctx, s.own.Address, now)
	if err != nil {
		s.log.Warningf("Cannot refresh own device list: %v", err)
	}
	for _, d := range own {
		if d != s.own {
			out = append(out, d)
		}
	}
	return slices.Clip(out), nil
}

// Decrypt opens an envelope sender sent to the local device.
//
// When the envelope started a session, msg.Reply holds the ratchet update
// that completes it. When there was no session to read it with, a fresh one
// is built and the error comes with msg.Sender and msg.Reply set to the key
// transport that announces it.
func (s *Service) Decrypt(
	ctx context.Context,
	sender domain.Address,
	env domain.Envelope,
) (domain.DecryptedMessage, bool, error) {
	msg, ok, err := Decrypt(ctx, s.own, s.sessions, sender, env)
	if err != nil {
		if ok && errors.Is(err, domain.ErrNoSession) {
			from := domain.Device{Address: sender, ID: env.SenderDeviceID}
			if reply, rerr := s.Repair(ctx, from); rerr != nil {
				s.log.Warningf("Unable to repair session with %s: %v", from, rerr)
			} else {
				msg = domain.DecryptedMessage{Sender: from, Reply: &reply}
			}
		}
		return msg, ok, err
	}
	if !ok {
		return msg, false, nil
	}
	instrument.MessageDecrypted()

	if err := s.devices.MarkMessageReceived(msg.Sender, s.now()); err != nil {
		s.log.Warningf("Cannot record message date of %s: %v", msg.Sender, err)
	}
	if msg.PreKeyConsumed {
		if _, err := s.prekeys.Publish(ctx); err != nil {
			s.log.Errorf("Cannot republish bundle after pre-key use: %v", err)
		}
	}
	if msg.PreKeyMessage {
		reply, err := s.RatchetUpdate(ctx, msg.Sender)
		if err != nil {
			s.log.Warningf("Cannot complete session with %s: %v", msg.Sender, err)
		} else {
			msg.Reply = &reply
		}
	}
	return msg, true, nil
}

// RatchetUpdate returns an empty key transport for device over the current
// session, building one if needed. Receiving it moves the remote side off
// its handshake. Trust decisions do not apply, as nothing is disclosed.
func (s *Service) RatchetUpdate(ctx context.Context, device domain.Device) (domain.Envelope, error) {
	if device == s.own {
		return domain.Envelope{}, fmt.Errorf("message: ratchet update for the local device %s", device)
	}
	b, err := NewKeyTransport(s.own, s.sessions, gullible{s.trust})
	if err != nil {
		return domain.Envelope{}, err
	}
	b.SetLogger(s.log)
	if res := b.AddRecipient(ctx, device); res.Status != domain.RecipientAdded {
		return domain.Envelope{}, res.Err
	}
	return b.Finish()
}

// Repair drops the session with device and returns a key transport over a
// freshly built one.
func (s *Service) Repair(ctx context.Context, device domain.Device) (domain.Envelope, error) {
	s.log.Warningf("Repairing session with %s", device)
	if err := s.sessions.Remove(device); err != nil {
		return domain.Envelope{}, err
	}
	env, err := s.RatchetUpdate(ctx, device)
	if err != nil {
		return domain.Envelope{}, err
	}
	instrument.SessionRepaired()
	return env, nil
}

// gullible reports every identity as trusted.
type gullible struct {
	domain.TrustService
}

func (gullible) State(domain.Device, domain.Fingerprint) (domain.TrustState, error) {
	return domain.Trusted, nil
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
