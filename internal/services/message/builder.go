package message

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/instrument"
)

// DefaultConcurrency bounds AddRecipients unless SetConcurrency says otherwise.
const DefaultConcurrency = 8

// Builder assembles one encrypted message. Key, IV and body are fixed at
// construction and shared by every recipient; only the header list grows.
// A Builder is finished exactly once.
type Builder struct {
	sender   domain.Device
	sessions domain.SessionService
	trust    domain.TrustService
	log      *logging.Logger

	key     []byte
	iv      []byte
	body    []byte
	payload []byte // key, followed by the tag unless this is a key transport

	limit int

	mu       sync.Mutex
	headers  []domain.KeyHeader
	finished bool
}

// NewBuilder encrypts plaintext under a fresh key and IV.
func NewBuilder(
	sender domain.Device,
	sessions domain.SessionService,
	trust domain.TrustService,
	plaintext []byte,
) (*Builder, error) {
	key, iv, err := crypto.NewMessageKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCipher, err)
	}
	return NewBuilderWithKey(sender, sessions, trust, key, iv, plaintext)
}

// NewBuilderWithKey encrypts plaintext under the given 16-byte key and IV.
func NewBuilderWithKey(
	sender domain.Device,
	sessions domain.SessionService,
	trust domain.TrustService,
	key, iv, plaintext []byte,
) (*Builder, error) {
	body, tag, err := crypto.SealBody(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	b := newBuilder(sender, sessions, trust, key, iv)
	b.body = body
	b.payload = append(bytes.Clone(key), tag...)
	return b, nil
}

// NewKeyTransport returns a Builder for a message without a body: it only
// hands a fresh key and IV to the recipients, e.g. to bootstrap sessions.
func NewKeyTransport(
	sender domain.Device,
	sessions domain.SessionService,
	trust domain.TrustService,
) (*Builder, error) {
	key, iv, err := crypto.NewMessageKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCipher, err)
	}
	b := newBuilder(sender, sessions, trust, key, iv)
	b.payload = bytes.Clone(key)
	return b, nil
}

func newBuilder(
	sender domain.Device,
	sessions domain.SessionService,
	trust domain.TrustService,
	key, iv []byte,
) *Builder {
	return &Builder{
		sender:   sender,
		sessions: sessions,
		trust:    trust,
		log:      logging.MustGetLogger("message"),
		key:      bytes.Clone(key),
		iv:       bytes.Clone(iv),
		limit:    DefaultConcurrency,
	}
}

// Key returns the message key.
func (b *Builder) Key() []byte { return bytes.Clone(b.key) }

// IV returns the message IV.
func (b *Builder) IV() []byte { return bytes.Clone(b.iv) }

// SetConcurrency bounds how many recipients AddRecipients handles at once.
func (b *Builder) SetConcurrency(n int) {
	if n > 0 {
		b.limit = n
	}
}

// SetLogger replaces the package logger.
func (b *Builder) SetLogger(log *logging.Logger) {
	if log != nil {
		b.log = log
	}
}

// AddRecipient wraps the message key for device. Whatever goes wrong only
// concerns device and is reported in the result.
func (b *Builder) AddRecipient(ctx context.Context, device domain.Device) domain.RecipientResult {
	res, header := b.addRecipient(ctx, device)
	if header != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.finished {
			return failed(device, res.Fingerprint, domain.ErrBuilderFinished)
		}
		b.headers = append(b.headers, *header)
	}
	return res
}

// AddRecipients adds every device concurrently. Results, and the headers
// added to the message, follow the order of devices.
func (b *Builder) AddRecipients(ctx context.Context, devices []domain.Device) []domain.RecipientResult {
	results := make([]domain.RecipientResult, len(devices))
	headers := make([]*domain.KeyHeader, len(devices))

	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, d := range devices {
		g.Go(func() error {
			results[i], headers[i] = b.addRecipient(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range headers {
		if h == nil {
			continue
		}
		if b.finished {
			results[i] = failed(devices[i], results[i].Fingerprint, domain.ErrBuilderFinished)
			continue
		}
		b.headers = append(b.headers, *h)
	}
	return results
}

func (b *Builder) isFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

func (b *Builder) addRecipient(ctx context.Context, device domain.Device) (domain.RecipientResult, *domain.KeyHeader) {
	if b.isFinished() {
		return failed(device, "", domain.ErrBuilderFinished), nil
	}
	if err := ctx.Err(); err != nil {
		return failed(device, "", err), nil
	}

	fp, err := b.sessions.Ensure(ctx, device)
	if err != nil {
		return failed(device, "", err), nil
	}
	state, err := b.trust.State(device, fp)
	if err != nil {
		return failed(device, fp, err), nil
	}
	switch state {
	case domain.Undecided:
		instrument.RecipientSkipped("undecided")
		b.log.Infof("Not encrypting for %s: identity %s is undecided", device, fp.Pretty())
		return failed(device, fp, &domain.UndecidedIdentityError{Device: device, Fingerprint: fp}), nil
	case domain.Distrusted:
		instrument.RecipientSkipped("distrusted")
		b.log.Debugf("Skipping distrusted device %s", device)
		return domain.RecipientResult{Device: device, Status: domain.RecipientSkipped, Fingerprint: fp}, nil
	}

	wrapped, isPreKey, err := b.sessions.EncryptKey(device, b.payload)
	if err != nil {
		return failed(device, fp, err), nil
	}
	return domain.RecipientResult{Device: device, Status: domain.RecipientAdded, Fingerprint: fp},
		&domain.KeyHeader{DeviceID: device.ID, WrappedKey: wrapped, IsPreKeyMessage: isPreKey}
}

func failed(device domain.Device, fp domain.Fingerprint, err error) domain.RecipientResult {
	return domain.RecipientResult{Device: device, Status: domain.RecipientFailed, Fingerprint: fp, Err: err}
}

// Finish returns the assembled envelope. It may be called once.
func (b *Builder) Finish() (domain.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return domain.Envelope{}, domain.ErrBuilderFinished
	}
	b.finished = true
	return domain.Envelope{
		SenderDeviceID: b.sender.ID,
		Headers:        slices.Clone(b.headers),
		IV:             bytes.Clone(b.iv),
		Body:           bytes.Clone(b.body),
	}, nil
}
