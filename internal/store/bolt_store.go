package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"omemo/internal/domain"
	"omemo/internal/util/memzero"
)

const boltVersion = 0

var (
	metadataBucket     = []byte("metadata")
	identityBucket     = []byte("identity")
	remoteIdsBucket    = []byte("remote_identities")
	preKeysBucket      = []byte("pre_keys")
	signedPreKeyBucket = []byte("signed_pre_keys")
	countersBucket     = []byte("counters")
	sessionsBucket     = []byte("sessions")
	trustBucket        = []byte("trust")
	listsBucket        = []byte("device_lists")
	defaultsBucket     = []byte("default_devices")
	receivedBucket     = []byte("last_received")

	versionKey        = []byte("version")
	identityKey       = []byte("identity")
	lastPreKeyIDKey   = []byte("last_pre_key_id")
	currentSignedKey  = []byte("current_signed_pre_key_id")
	lastRenewalKey    = []byte("last_signed_pre_key_renewal")
	allDeviceBuckets  = [][]byte{identityBucket, remoteIdsBucket, preKeysBucket, signedPreKeyBucket, countersBucket, sessionsBucket, trustBucket, listsBucket, defaultsBucket, receivedBucket}
	purgeableBuckets  = [][]byte{identityBucket, preKeysBucket, signedPreKeyBucket, countersBucket, sessionsBucket}
	errMissingBuckets = errors.New("store: device bucket missing")
)

// BoltStore is the bbolt backed domain.Store of one local device. Several
// local devices may share one database file; each gets its own bucket.
type BoltStore struct {
	db         *bolt.DB
	device     []byte
	passphrase string
	kdf        kdfParams
}

var _ domain.Store = (*BoltStore)(nil)

// OpenBoltStore opens (or creates) the database at path and the bucket of
// device within it.
func OpenBoltStore(path string, device domain.Device, passphrase string, opts ...Option) (*BoltStore, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, domain.StorageError("open database", err)
	}
	s := &BoltStore{
		db:         db,
		device:     []byte(device.String()),
		passphrase: passphrase,
		kdf:        applyOptions(opts),
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metadataBucket)
		if err != nil {
			return err
		}
		if b := meta.Get(versionKey); b != nil {
			if len(b) != 1 || b[0] != boltVersion {
				return fmt.Errorf("store: incompatible database version: %d", uint(b[0]))
			}
		} else if err := meta.Put(versionKey, []byte{boltVersion}); err != nil {
			return err
		}
		return s.ensureBuckets(tx)
	}); err != nil {
		// The store isn't getting returned so clean up the database.
		db.Close()
		return nil, domain.StorageError("initialise database", err)
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ensureBuckets(tx *bolt.Tx) error {
	root, err := tx.CreateBucketIfNotExists(s.device)
	if err != nil {
		return err
	}
	for _, name := range allDeviceBuckets {
		if _, err := root.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	root := tx.Bucket(s.device)
	if root == nil {
		return nil, errMissingBuckets
	}
	bkt := root.Bucket(name)
	if bkt == nil {
		return nil, fmt.Errorf("%w: %s", errMissingBuckets, name)
	}
	return bkt, nil
}

func (s *BoltStore) view(op string, name []byte, fn func(*bolt.Bucket) error) error {
	return domain.StorageError(op, s.db.View(func(tx *bolt.Tx) error {
		bkt, err := s.bucket(tx, name)
		if err != nil {
			return err
		}
		return fn(bkt)
	}))
}

func (s *BoltStore) update(op string, name []byte, fn func(*bolt.Bucket) error) error {
	return domain.StorageError(op, s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := s.bucket(tx, name)
		if err != nil {
			return err
		}
		return fn(bkt)
	}))
}

// get decodes the value under key into out and reports whether it existed.
func get(bkt *bolt.Bucket, key []byte, out any) (bool, error) {
	b := bkt.Get(key)
	if b == nil {
		return false, nil
	}
	return true, cbor.Unmarshal(b, out)
}

func put(bkt *bolt.Bucket, key []byte, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	return bkt.Put(key, b)
}

func uint32Key(v uint32) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], v)
	return k[:]
}

// deviceKey orders sessions by address so that a prefix scan finds every
// device of one account.
func deviceKey(d domain.Device) []byte {
	return append(addressPrefix(d.Address), uint32Key(uint32(d.ID))...)
}

func addressPrefix(a domain.Address) []byte {
	return append([]byte(a.String()), 0)
}

// --- IdentityStore ---

func (s *BoltStore) IsFreshInstallation() (bool, error) {
	fresh := true
	err := s.view("load identity", identityBucket, func(bkt *bolt.Bucket) error {
		fresh = bkt.Get(identityKey) == nil
		return nil
	})
	return fresh, err
}

func (s *BoltStore) LoadIdentityKeyPair() (domain.IdentityKeyPair, bool, error) {
	var sealed []byte
	err := s.view("load identity", identityBucket, func(bkt *bolt.Bucket) error {
		sealed = bytes.Clone(bkt.Get(identityKey))
		return nil
	})
	if err != nil || sealed == nil {
		return domain.IdentityKeyPair{}, false, err
	}
	raw, err := unseal(s.passphrase, sealed)
	if err != nil {
		return domain.IdentityKeyPair{}, false, err
	}
	defer memzero.Zero(raw)
	pair, err := identityFromRaw(raw)
	if err != nil {
		return pair, false, err
	}
	return pair, true, nil
}

func (s *BoltStore) StoreIdentityKeyPair(pair domain.IdentityKeyPair) error {
	sealed, err := seal(s.passphrase, pair.Private[:], s.kdf)
	if err != nil {
		return err
	}
	return s.update("store identity", identityBucket, func(bkt *bolt.Bucket) error {
		return bkt.Put(identityKey, sealed)
	})
}

func (s *BoltStore) LoadIdentityKey(device domain.Device) (domain.IdentityKey, bool, error) {
	var (
		key domain.IdentityKey
		ok  bool
	)
	err := s.view("load identity key", remoteIdsBucket, func(bkt *bolt.Bucket) error {
		b := bkt.Get([]byte(device.String()))
		if b == nil {
			return nil
		}
		if key, ok = domain.Ed25519PublicFromBytes(b); !ok {
			return domain.Corrupted(device, "stored identity key", nil)
		}
		return nil
	})
	return key, ok, err
}

func (s *BoltStore) StoreIdentityKey(device domain.Device, key domain.IdentityKey) error {
	return s.update("store identity key", remoteIdsBucket, func(bkt *bolt.Bucket) error {
		return bkt.Put([]byte(device.String()), key.Slice())
	})
}

// Purge empties the buckets holding local key material and sessions.
func (s *BoltStore) Purge() error {
	return domain.StorageError("purge", s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.device)
		if root == nil {
			return errMissingBuckets
		}
		for _, name := range purgeableBuckets {
			if err := root.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return s.ensureBuckets(tx)
	}))
}

// --- PreKeyStore ---

func (s *BoltStore) LoadPreKey(id domain.OneTimePreKeyID) (domain.OneTimePreKey, bool, error) {
	var (
		key domain.OneTimePreKey
		ok  bool
	)
	err := s.view("load pre-key", preKeysBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, uint32Key(uint32(id)), &key)
		return err
	})
	return key, ok, err
}

func (s *BoltStore) LoadPreKeys() (map[domain.OneTimePreKeyID]domain.OneTimePreKey, error) {
	out := map[domain.OneTimePreKeyID]domain.OneTimePreKey{}
	err := s.view("load pre-keys", preKeysBucket, func(bkt *bolt.Bucket) error {
		return bkt.ForEach(func(_, v []byte) error {
			var key domain.OneTimePreKey
			if err := cbor.Unmarshal(v, &key); err != nil {
				return err
			}
			out[key.ID] = key
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) StorePreKey(key domain.OneTimePreKey) error {
	return s.StorePreKeys(map[domain.OneTimePreKeyID]domain.OneTimePreKey{key.ID: key})
}

func (s *BoltStore) StorePreKeys(keys map[domain.OneTimePreKeyID]domain.OneTimePreKey) error {
	return s.update("store pre-keys", preKeysBucket, func(bkt *bolt.Bucket) error {
		for id, key := range keys {
			if err := put(bkt, uint32Key(uint32(id)), key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) RemovePreKey(id domain.OneTimePreKeyID) error {
	return s.update("remove pre-key", preKeysBucket, func(bkt *bolt.Bucket) error {
		return bkt.Delete(uint32Key(uint32(id)))
	})
}

func (s *BoltStore) LoadLastPreKeyID() (domain.OneTimePreKeyID, error) {
	var id domain.OneTimePreKeyID
	err := s.view("load pre-key counter", countersBucket, func(bkt *bolt.Bucket) error {
		_, err := get(bkt, lastPreKeyIDKey, &id)
		return err
	})
	return id, err
}

func (s *BoltStore) StoreLastPreKeyID(id domain.OneTimePreKeyID) error {
	return s.update("store pre-key counter", countersBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, lastPreKeyIDKey, id)
	})
}

// --- SignedPreKeyStore ---

func (s *BoltStore) LoadSignedPreKey(id domain.SignedPreKeyID) (domain.SignedPreKey, bool, error) {
	var (
		key domain.SignedPreKey
		ok  bool
	)
	err := s.view("load signed pre-key", signedPreKeyBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, uint32Key(uint32(id)), &key)
		return err
	})
	return key, ok, err
}

func (s *BoltStore) LoadSignedPreKeys() (map[domain.SignedPreKeyID]domain.SignedPreKey, error) {
	out := map[domain.SignedPreKeyID]domain.SignedPreKey{}
	err := s.view("load signed pre-keys", signedPreKeyBucket, func(bkt *bolt.Bucket) error {
		return bkt.ForEach(func(_, v []byte) error {
			var key domain.SignedPreKey
			if err := cbor.Unmarshal(v, &key); err != nil {
				return err
			}
			out[key.ID] = key
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) StoreSignedPreKey(key domain.SignedPreKey) error {
	return s.update("store signed pre-key", signedPreKeyBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, uint32Key(uint32(key.ID)), key)
	})
}

func (s *BoltStore) RemoveSignedPreKey(id domain.SignedPreKeyID) error {
	return s.update("remove signed pre-key", signedPreKeyBucket, func(bkt *bolt.Bucket) error {
		return bkt.Delete(uint32Key(uint32(id)))
	})
}

func (s *BoltStore) LoadCurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	var (
		id domain.SignedPreKeyID
		ok bool
	)
	err := s.view("load signed pre-key counter", countersBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, currentSignedKey, &id)
		return err
	})
	return id, ok, err
}

func (s *BoltStore) StoreCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	return s.update("store signed pre-key counter", countersBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, currentSignedKey, id)
	})
}

func (s *BoltStore) LoadLastSignedPreKeyRenewal() (time.Time, bool, error) {
	var (
		unix int64
		ok   bool
	)
	err := s.view("load signed pre-key renewal", countersBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, lastRenewalKey, &unix)
		return err
	})
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *BoltStore) StoreLastSignedPreKeyRenewal(at time.Time) error {
	return s.update("store signed pre-key renewal", countersBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, lastRenewalKey, at.Unix())
	})
}

// --- SessionStore ---

func (s *BoltStore) LoadRawSession(device domain.Device) ([]byte, bool, error) {
	var b []byte
	err := s.view("load session", sessionsBucket, func(bkt *bolt.Bucket) error {
		b = bytes.Clone(bkt.Get(deviceKey(device)))
		return nil
	})
	return b, b != nil, err
}

func (s *BoltStore) StoreRawSession(device domain.Device, record []byte) error {
	return s.update("store session", sessionsBucket, func(bkt *bolt.Bucket) error {
		return bkt.Put(deviceKey(device), record)
	})
}

func (s *BoltStore) ContainsSession(device domain.Device) (bool, error) {
	var ok bool
	err := s.view("load session", sessionsBucket, func(bkt *bolt.Bucket) error {
		ok = bkt.Get(deviceKey(device)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltStore) RemoveSession(device domain.Device) error {
	return s.update("remove session", sessionsBucket, func(bkt *bolt.Bucket) error {
		return bkt.Delete(deviceKey(device))
	})
}

func (s *BoltStore) LoadAllRawSessionsOf(address domain.Address) (map[domain.DeviceID][]byte, error) {
	out := map[domain.DeviceID][]byte{}
	prefix := addressPrefix(address)
	err := s.view("load sessions", sessionsBucket, func(bkt *bolt.Bucket) error {
		c := bkt.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rest := k[len(prefix):]
			if len(rest) != 4 {
				continue
			}
			out[domain.DeviceID(binary.BigEndian.Uint32(rest))] = bytes.Clone(v)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) RemoveAllSessionsOf(address domain.Address) error {
	prefix := addressPrefix(address)
	return s.update("remove sessions", sessionsBucket, func(bkt *bolt.Bucket) error {
		var doomed [][]byte
		c := bkt.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			doomed = append(doomed, bytes.Clone(k))
		}
		for _, k := range doomed {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- TrustStore ---

func trustKey(device domain.Device, fp domain.Fingerprint) []byte {
	return append(deviceKey(device), fp.String()...)
}

func (s *BoltStore) lookupTrust(device domain.Device, fp domain.Fingerprint) (trusted, decided bool, err error) {
	err = s.view("load trust", trustBucket, func(bkt *bolt.Bucket) error {
		b := bkt.Get(trustKey(device, fp))
		decided = len(b) == 1
		trusted = decided && b[0] == 1
		return nil
	})
	return trusted, decided, err
}

func (s *BoltStore) decide(device domain.Device, fp domain.Fingerprint, trusted bool) error {
	v := byte(0)
	if trusted {
		v = 1
	}
	return s.update("store trust", trustBucket, func(bkt *bolt.Bucket) error {
		return bkt.Put(trustKey(device, fp), []byte{v})
	})
}

func (s *BoltStore) IsDecided(device domain.Device, fp domain.Fingerprint) (bool, error) {
	_, decided, err := s.lookupTrust(device, fp)
	return decided, err
}

func (s *BoltStore) IsTrusted(device domain.Device, fp domain.Fingerprint) (bool, error) {
	trusted, _, err := s.lookupTrust(device, fp)
	return trusted, err
}

func (s *BoltStore) Trust(device domain.Device, fp domain.Fingerprint) error {
	return s.decide(device, fp, true)
}

func (s *BoltStore) Distrust(device domain.Device, fp domain.Fingerprint) error {
	return s.decide(device, fp, false)
}

// --- DeviceListStore ---

func (s *BoltStore) LoadCachedDeviceList(address domain.Address) (domain.CachedDeviceList, error) {
	var list domain.CachedDeviceList
	err := s.view("load device list", listsBucket, func(bkt *bolt.Bucket) error {
		_, err := get(bkt, []byte(address), &list)
		return err
	})
	return list, err
}

func (s *BoltStore) StoreCachedDeviceList(address domain.Address, list domain.CachedDeviceList) error {
	return s.update("store device list", listsBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, []byte(address), list)
	})
}

func (s *BoltStore) LoadDefaultDeviceID(address domain.Address) (domain.DeviceID, bool, error) {
	var (
		id domain.DeviceID
		ok bool
	)
	err := s.view("load default device", defaultsBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, []byte(address), &id)
		return err
	})
	return id, ok, err
}

func (s *BoltStore) StoreDefaultDeviceID(address domain.Address, id domain.DeviceID) error {
	return s.update("store default device", defaultsBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, []byte(address), id)
	})
}

func (s *BoltStore) LoadLastMessageReceived(device domain.Device) (time.Time, bool, error) {
	var (
		unix int64
		ok   bool
	)
	err := s.view("load last received", receivedBucket, func(bkt *bolt.Bucket) (err error) {
		ok, err = get(bkt, deviceKey(device), &unix)
		return err
	})
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *BoltStore) StoreLastMessageReceived(device domain.Device, at time.Time) error {
	return s.update("store last received", receivedBucket, func(bkt *bolt.Bucket) error {
		return put(bkt, deviceKey(device), at.Unix())
	})
}
