package message_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"omemo/internal/domain"
	"omemo/internal/keyutil"
	"omemo/internal/log"
	"omemo/internal/relay"
	"omemo/internal/services/devicelist"
	"omemo/internal/services/identity"
	"omemo/internal/services/message"
	"omemo/internal/services/prekey"
	"omemo/internal/services/session"
	"omemo/internal/services/trust"
	"omemo/internal/store"
)

const poolSize = 5

var (
	aliceDev  = domain.Device{Address: "alice@wonderland.lit", ID: 1}
	alice2Dev = domain.Device{Address: "alice@wonderland.lit", ID: 2}
	bobDev    = domain.Device{Address: "bob@builder.lit", ID: 3}
	carolDev  = domain.Device{Address: "carol@example.lit", ID: 4}
)

type party struct {
	dev      domain.Device
	fp       domain.Fingerprint
	store    *store.FileStore
	sessions *session.Manager
	trust    *trust.Service
	svc      *message.Service
}

func newParty(t *testing.T, ps domain.PubSub, dev domain.Device) *party {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewFileStore(t.TempDir(), dev, "", store.WithScryptLogN(10))
	require.NoError(t, err)

	backend := log.Discard()
	keys := keyutil.New(backend.GetLogger("keyutil"))
	pre := prekey.New(dev, s, keys, identity.New(s, keys), ps,
		prekey.Config{TargetCount: poolSize, MaxSignedPreKeys: 2, RenewAfter: time.Hour},
		backend.GetLogger("prekey"))
	fp, err := pre.Regenerate()
	require.NoError(t, err)
	_, err = pre.Publish(ctx)
	require.NoError(t, err)

	devices := devicelist.New(dev, s, ps, 0, backend.GetLogger("devicelist"))
	require.NoError(t, devices.AnnounceOwn(ctx))

	sessions := session.New(s, keys, ps, backend.GetLogger("session"))
	tr := trust.New(s)
	return &party{
		dev:      dev,
		fp:       fp,
		store:    s,
		sessions: sessions,
		trust:    tr,
		svc:      message.New(dev, sessions, tr, devices, pre, 4, backend.GetLogger("message")),
	}
}

func (p *party) trusts(t *testing.T, others ...*party) {
	t.Helper()
	for _, o := range others {
		require.NoError(t, p.trust.Trust(o.dev, o.fp))
	}
}

func (p *party) builder(t *testing.T, plaintext []byte) *message.Builder {
	t.Helper()
	b, err := message.NewBuilder(p.dev, p.sessions, p.trust, plaintext)
	require.NoError(t, err)
	return b
}

func (p *party) decrypt(t *testing.T, from *party, env domain.Envelope) domain.DecryptedMessage {
	t.Helper()
	msg, ok, err := p.svc.Decrypt(context.Background(), from.dev.Address, env)
	require.NoError(t, err)
	require.True(t, ok)
	return msg
}

func TestFixedKeyMatchesReferenceGCM(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	key := bytes.Repeat([]byte{0x0b}, 16)
	iv := bytes.Repeat([]byte{0x0c}, 16)
	plaintext := []byte("Hello World!")

	b, err := message.NewBuilderWithKey(alice.dev, alice.sessions, alice.trust, key, iv, plaintext)
	require.NoError(t, err)
	res := b.AddRecipient(context.Background(), bob.dev)
	require.Equal(t, domain.RecipientAdded, res.Status, "err: %v", res.Err)
	require.Equal(t, bob.fp, res.Fingerprint)
	env, err := b.Finish()
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	require.NoError(t, err)
	reference := gcm.Seal(nil, iv, plaintext, nil)
	require.Equal(t, reference[:len(plaintext)], env.Body)
	require.Equal(t, iv, env.IV)

	msg := bob.decrypt(t, alice, env)
	require.Equal(t, plaintext, msg.Plaintext)
	require.Equal(t, key, msg.Key)
	require.Equal(t, alice.fp, msg.Fingerprint)
	require.Equal(t, alice.dev, msg.Sender)
}

func TestServiceEncryptsForContactsAndOwnDevices(t *testing.T) {
	ctx := context.Background()
	ps := relay.NewMemory()
	alice := newParty(t, ps, aliceDev)
	alice2 := newParty(t, ps, alice2Dev)
	bob := newParty(t, ps, bobDev)
	alice.trusts(t, alice2, bob)

	env, results, err := alice.svc.Encrypt(ctx, []byte("wherefore art thou"), bob.dev.Address)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, bob.dev, results[0].Device)
	require.Equal(t, alice2.dev, results[1].Device)
	for _, r := range results {
		require.Equal(t, domain.RecipientAdded, r.Status, "%s: %v", r.Device, r.Err)
	}
	require.Len(t, env.Headers, 2)
	require.Equal(t, aliceDev.ID, env.SenderDeviceID)

	msg := bob.decrypt(t, alice, env)
	require.Equal(t, "wherefore art thou", string(msg.Plaintext))
	require.True(t, msg.PreKeyConsumed)

	msg = alice2.decrypt(t, alice, env)
	require.Equal(t, "wherefore art thou", string(msg.Plaintext))

	// The sending device has no key of its own.
	_, ok, err := alice.svc.Decrypt(ctx, alice.dev.Address, env)
	require.NoError(t, err)
	require.False(t, ok)

	// Bob republished a topped up bundle and noted when alice last wrote.
	published, err := ps.FetchBundle(ctx, bob.dev)
	require.NoError(t, err)
	require.Len(t, published.PreKeys, poolSize)
	require.Contains(t, published.PreKeys, domain.OneTimePreKeyID(poolSize+1))
	_, seen, err := bob.store.LoadLastMessageReceived(alice.dev)
	require.NoError(t, err)
	require.True(t, seen)

	// Bob answers over the session alice's message built.
	bob.trusts(t, alice, alice2)
	reply, results, err := bob.svc.Encrypt(ctx, []byte("deny thy father"), alice.dev.Address)
	require.NoError(t, err)
	require.Len(t, results, 2)
	msg = alice.decrypt(t, bob, reply)
	require.Equal(t, "deny thy father", string(msg.Plaintext))
	require.False(t, msg.PreKeyConsumed)
}

func TestUndecidedRecipientIsIsolated(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob, carol := newParty(t, ps, aliceDev), newParty(t, ps, bobDev), newParty(t, ps, carolDev)
	alice.trusts(t, bob)

	b := alice.builder(t, []byte("hi"))
	results := b.AddRecipients(context.Background(), []domain.Device{carol.dev, bob.dev})
	require.Len(t, results, 2)

	require.Equal(t, domain.RecipientFailed, results[0].Status)
	require.ErrorIs(t, results[0].Err, domain.ErrUndecidedIdentity)
	var undecided *domain.UndecidedIdentityError
	require.ErrorAs(t, results[0].Err, &undecided)
	require.Equal(t, carol.dev, undecided.Device)
	require.Equal(t, carol.fp, undecided.Fingerprint)

	require.Equal(t, domain.RecipientAdded, results[1].Status)

	env, err := b.Finish()
	require.NoError(t, err)
	require.Len(t, env.Headers, 1)
	require.Equal(t, bob.dev.ID, env.Headers[0].DeviceID)
	require.True(t, env.Headers[0].IsPreKeyMessage)

	_, ok, err := carol.svc.Decrypt(context.Background(), alice.dev.Address, env)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDistrustedRecipientIsSkipped(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	require.NoError(t, alice.trust.Distrust(bob.dev, bob.fp))

	b := alice.builder(t, []byte("hi"))
	res := b.AddRecipient(context.Background(), bob.dev)
	require.Equal(t, domain.RecipientSkipped, res.Status)
	require.NoError(t, res.Err)
	env, err := b.Finish()
	require.NoError(t, err)
	require.Empty(t, env.Headers)
}

func TestUnreachableRecipientIsIsolated(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)
	ghost := domain.Device{Address: "ghost@nowhere.lit", ID: 9}

	b := alice.builder(t, []byte("hi"))
	results := b.AddRecipients(context.Background(), []domain.Device{ghost, bob.dev})
	require.ErrorIs(t, results[0].Err, domain.ErrCannotEstablishSession)
	require.Equal(t, domain.RecipientAdded, results[1].Status)
}

func TestFinishIsOneShot(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	b := alice.builder(t, []byte("hi"))
	_, err := b.Finish()
	require.NoError(t, err)
	_, err = b.Finish()
	require.ErrorIs(t, err, domain.ErrBuilderFinished)

	res := b.AddRecipient(context.Background(), bob.dev)
	require.Equal(t, domain.RecipientFailed, res.Status)
	require.ErrorIs(t, res.Err, domain.ErrBuilderFinished)
}

func TestKeyTransport(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	b, err := message.NewKeyTransport(alice.dev, alice.sessions, alice.trust)
	require.NoError(t, err)
	res := b.AddRecipient(context.Background(), bob.dev)
	require.Equal(t, domain.RecipientAdded, res.Status)
	env, err := b.Finish()
	require.NoError(t, err)
	require.Nil(t, env.Body)

	msg := bob.decrypt(t, alice, env)
	require.Nil(t, msg.Plaintext)
	require.Equal(t, b.Key(), msg.Key)
}

func TestEmptyPlaintext(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	b := alice.builder(t, nil)
	b.AddRecipient(context.Background(), bob.dev)
	env, err := b.Finish()
	require.NoError(t, err)
	env.Body = nil // as after a JSON round trip

	msg := bob.decrypt(t, alice, env)
	require.Empty(t, msg.Plaintext)
	require.Len(t, msg.Key, 16)
}

func TestTamperedBodyIsFatal(t *testing.T) {
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	b := alice.builder(t, []byte("attack at dawn"))
	b.AddRecipient(context.Background(), bob.dev)
	env, err := b.Finish()
	require.NoError(t, err)
	env.Body[0] ^= 0x01

	_, ok, err := bob.svc.Decrypt(context.Background(), alice.dev.Address, env)
	require.True(t, ok)
	require.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestHandshakeIsAnsweredWithRatchetUpdate(t *testing.T) {
	ctx := context.Background()
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)

	env, _, err := alice.svc.Encrypt(ctx, []byte("knock knock"), bob.dev.Address)
	require.NoError(t, err)
	require.True(t, env.Headers[0].IsPreKeyMessage)
	s, ok, err := alice.sessions.Get(bob.dev)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, s.Pending())

	// Bob has not decided on alice yet; the update goes out anyway.
	msg := bob.decrypt(t, alice, env)
	require.True(t, msg.PreKeyMessage)
	require.NotNil(t, msg.Reply)
	require.Nil(t, msg.Reply.Body)
	require.Len(t, msg.Reply.Headers, 1)
	require.False(t, msg.Reply.Headers[0].IsPreKeyMessage)

	update := alice.decrypt(t, bob, *msg.Reply)
	require.Nil(t, update.Plaintext)
	require.Nil(t, update.Reply)
	s, ok, err = alice.sessions.Get(bob.dev)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, s.Pending())

	env, _, err = alice.svc.Encrypt(ctx, []byte("who's there"), bob.dev.Address)
	require.NoError(t, err)
	require.False(t, env.Headers[0].IsPreKeyMessage)
	msg = bob.decrypt(t, alice, env)
	require.Equal(t, "who's there", string(msg.Plaintext))
	require.Nil(t, msg.Reply)
}

func TestMissingSessionIsRepaired(t *testing.T) {
	ctx := context.Background()
	ps := relay.NewMemory()
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)
	bob.trusts(t, alice)

	env, _, err := alice.svc.Encrypt(ctx, []byte("one"), bob.dev.Address)
	require.NoError(t, err)
	msg := bob.decrypt(t, alice, env)
	alice.decrypt(t, bob, *msg.Reply)

	// Bob loses the session, so alice's next message cannot be read.
	require.NoError(t, bob.sessions.Remove(alice.dev))
	env, _, err = alice.svc.Encrypt(ctx, []byte("two"), bob.dev.Address)
	require.NoError(t, err)
	msg, ok, err := bob.svc.Decrypt(ctx, alice.dev.Address, env)
	require.True(t, ok)
	require.ErrorIs(t, err, domain.ErrNoSession)
	require.Equal(t, alice.dev, msg.Sender)
	require.NotNil(t, msg.Reply)
	require.True(t, msg.Reply.Headers[0].IsPreKeyMessage)

	// Alice takes the new session and the two are back in step.
	repaired := alice.decrypt(t, bob, *msg.Reply)
	require.True(t, repaired.PreKeyConsumed)
	require.Equal(t, bob.fp, repaired.Fingerprint)
	require.NotNil(t, repaired.Reply)
	bob.decrypt(t, alice, *repaired.Reply)

	env, _, err = alice.svc.Encrypt(ctx, []byte("three"), bob.dev.Address)
	require.NoError(t, err)
	msg = bob.decrypt(t, alice, env)
	require.Equal(t, "three", string(msg.Plaintext))
}

func TestRatchetUpdateRefusesLocalDevice(t *testing.T) {
	alice := newParty(t, relay.NewMemory(), aliceDev)
	_, err := alice.svc.RatchetUpdate(context.Background(), alice.dev)
	require.Error(t, err)
}

type countingPubSub struct {
	domain.PubSub
	bundleFetches atomic.Int32
}

func (c *countingPubSub) FetchBundle(ctx context.Context, device domain.Device) (domain.Bundle, error) {
	c.bundleFetches.Add(1)
	return c.PubSub.FetchBundle(ctx, device)
}

func TestConcurrentRecipientsShareOneSession(t *testing.T) {
	ps := &countingPubSub{PubSub: relay.NewMemory()}
	alice, bob := newParty(t, ps, aliceDev), newParty(t, ps, bobDev)
	alice.trusts(t, bob)
	before := ps.bundleFetches.Load()

	b := alice.builder(t, []byte("six of the same"))
	b.SetConcurrency(8)
	devices := []domain.Device{bob.dev, bob.dev, bob.dev, bob.dev, bob.dev, bob.dev}
	for _, r := range b.AddRecipients(context.Background(), devices) {
		require.Equal(t, domain.RecipientAdded, r.Status, "err: %v", r.Err)
	}
	env, err := b.Finish()
	require.NoError(t, err)
	require.Len(t, env.Headers, len(devices))
	require.Equal(t, int32(1), ps.bundleFetches.Load()-before)

	msg := bob.decrypt(t, alice, env)
	require.Equal(t, "six of the same", string(msg.Plaintext))
}
