package keyutil

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/op/go-logging.v1"

	"omemo/internal/crypto"
	"omemo/internal/domain"
)

// MaxPreKeyID is the largest one-time pre-key id handed out before the
// counter wraps back to 1.
const MaxPreKeyID domain.OneTimePreKeyID = 0xFFFFFE

// ccbor is a reusable canonical encoder, safe for concurrent use.
var ccbor cbor.EncMode

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	ccbor, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

// Util implements domain.KeyUtil.
type Util struct {
	log *logging.Logger
	now func() time.Time
}

var _ domain.KeyUtil = (*Util)(nil)

// New returns the backend. Diagnostics about skipped bundle entries go to log.
func New(log *logging.Logger) *Util {
	if log == nil {
		log = logging.MustGetLogger("keyutil")
	}
	return &Util{log: log, now: time.Now}
}

// NextPreKeyID returns the id that follows id, wrapping past MaxPreKeyID.
func NextPreKeyID(id domain.OneTimePreKeyID) domain.OneTimePreKeyID {
	return id%MaxPreKeyID + 1
}

func (u *Util) GenerateIdentityKeyPair() (domain.IdentityKeyPair, error) {
	return crypto.NewIdentityKeyPair()
}

func (u *Util) IdentityKeyFromPair(pair domain.IdentityKeyPair) domain.IdentityKey {
	return pair.Public
}

// GeneratePreKeys returns count fresh pre-keys. Ids run from start and wrap
// to 1 after MaxPreKeyID; a start of 0 counts as 1.
func (u *Util) GeneratePreKeys(start domain.OneTimePreKeyID, count int) (map[domain.OneTimePreKeyID]domain.OneTimePreKey, error) {
	if count < 0 {
		return nil, fmt.Errorf("keyutil: negative pre-key count %d", count)
	}
	id := domain.OneTimePreKeyID(1)
	if start != 0 {
		id = (start-1)%MaxPreKeyID + 1
	}
	out := make(map[domain.OneTimePreKeyID]domain.OneTimePreKey, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, err
		}
		out[id] = domain.OneTimePreKey{ID: id, Private: priv, Public: pub}
		id = NextPreKeyID(id)
	}
	return out, nil
}

func (u *Util) GenerateSignedPreKey(pair domain.IdentityKeyPair, id domain.SignedPreKeyID) (domain.SignedPreKey, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	return domain.SignedPreKey{
		ID:         id,
		Private:    priv,
		Public:     pub,
		Signature:  crypto.SignEd25519(pair.Private, pub[:]),
		CreatedUTC: u.now().UTC().Unix(),
	}, nil
}

func (u *Util) Fingerprint(key domain.IdentityKey) domain.Fingerprint {
	return crypto.Fingerprint(key)
}

func (u *Util) RemoteIdentityKey(session domain.SessionRecord) domain.IdentityKey {
	return session.RemoteIdentity
}

// Address renders device as "address:id".
func (u *Util) Address(device domain.Device) string { return device.String() }

// DeviceFromAddress parses the "address:id" form produced by Address.
func (u *Util) DeviceFromAddress(addr string) (domain.Device, error) {
	i := strings.LastIndex(addr, ":")
	if i <= 0 {
		return domain.Device{}, fmt.Errorf("%w: %q", domain.ErrMalformedAddress, addr)
	}
	id, err := strconv.ParseUint(addr[i+1:], 10, 32)
	if err != nil {
		return domain.Device{}, fmt.Errorf("%w: %q", domain.ErrMalformedAddress, addr)
	}
	return domain.Device{Address: domain.Address(addr[:i]), ID: domain.DeviceID(id)}, nil
}

// --- serialisation ---

// IdentityKeyPairToBytes returns the 64-byte private key; the public half
// is its suffix.
func (u *Util) IdentityKeyPairToBytes(pair domain.IdentityKeyPair) ([]byte, error) {
	return bytes.Clone(pair.Private[:]), nil
}

func (u *Util) IdentityKeyPairFromBytes(b []byte) (domain.IdentityKeyPair, error) {
	var pair domain.IdentityKeyPair
	if len(b) != ed25519.PrivateKeySize {
		return pair, domain.Corrupted(domain.Device{}, "identity key pair", fmt.Errorf("length %d", len(b)))
	}
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(derived, b) {
		return pair, domain.Corrupted(domain.Device{}, "identity key pair", fmt.Errorf("public half does not match seed"))
	}
	copy(pair.Private[:], derived)
	copy(pair.Public[:], derived[ed25519.SeedSize:])
	return pair, nil
}

func (u *Util) IdentityKeyToBytes(key domain.IdentityKey) []byte { return bytes.Clone(key[:]) }

func (u *Util) IdentityKeyFromBytes(b []byte) (domain.IdentityKey, error) {
	key, ok := domain.Ed25519PublicFromBytes(b)
	if !ok {
		return key, domain.Corrupted(domain.Device{}, "identity key", fmt.Errorf("length %d", len(b)))
	}
	if _, err := crypto.IdentityDHPublic(key); err != nil {
		return key, domain.Corrupted(domain.Device{}, "identity key", err)
	}
	return key, nil
}

func (u *Util) PreKeyToBytes(key domain.OneTimePreKey) ([]byte, error) {
	return ccbor.Marshal(key)
}

func (u *Util) PreKeyFromBytes(b []byte) (domain.OneTimePreKey, error) {
	var key domain.OneTimePreKey
	if err := cbor.Unmarshal(b, &key); err != nil {
		return key, domain.Corrupted(domain.Device{}, "pre-key", err)
	}
	if err := checkPair(key.Private, key.Public); err != nil {
		return key, domain.Corrupted(domain.Device{}, fmt.Sprintf("pre-key %d", key.ID), err)
	}
	return key, nil
}

func (u *Util) SignedPreKeyToBytes(key domain.SignedPreKey) ([]byte, error) {
	return ccbor.Marshal(key)
}

func (u *Util) SignedPreKeyFromBytes(b []byte) (domain.SignedPreKey, error) {
	var key domain.SignedPreKey
	if err := cbor.Unmarshal(b, &key); err != nil {
		return key, domain.Corrupted(domain.Device{}, "signed pre-key", err)
	}
	if err := checkPair(key.Private, key.Public); err != nil {
		return key, domain.Corrupted(domain.Device{}, fmt.Sprintf("signed pre-key %d", key.ID), err)
	}
	return key, nil
}

func (u *Util) SessionToBytes(session domain.SessionRecord) ([]byte, error) {
	return ccbor.Marshal(session)
}

func (u *Util) SessionFromBytes(b []byte) (domain.SessionRecord, error) {
	var s domain.SessionRecord
	if err := cbor.Unmarshal(b, &s); err != nil {
		return s, domain.Corrupted(domain.Device{}, "session", err)
	}
	if len(s.State.RootKey) != 32 {
		return s, domain.Corrupted(s.Remote, "session", fmt.Errorf("root key length %d", len(s.State.RootKey)))
	}
	if s.State.SkippedKeys == nil {
		s.State.SkippedKeys = make(map[string][]byte)
	}
	return s, nil
}

func (u *Util) ECPublicKeyToBytes(key domain.X25519Public) []byte { return bytes.Clone(key[:]) }

func (u *Util) ECPublicKeyFromBytes(b []byte) (domain.X25519Public, error) {
	key, ok := domain.X25519PublicFromBytes(b)
	if !ok {
		return key, domain.Corrupted(domain.Device{}, "public key", fmt.Errorf("length %d", len(b)))
	}
	return key, nil
}

func checkPair(priv domain.X25519Private, pub domain.X25519Public) error {
	derived, err := crypto.PublicX25519(priv)
	if err != nil {
		return err
	}
	if derived != pub {
		return fmt.Errorf("public key does not match private key")
	}
	return nil
}
