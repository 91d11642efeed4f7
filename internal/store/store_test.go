package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"omemo/internal/crypto"
	"omemo/internal/domain"
	"omemo/internal/store"
)

var (
	local  = domain.Device{Address: "juliet@capulet.lit", ID: 1001}
	romeo  = domain.Device{Address: "romeo@montague.lit", ID: 7}
	tybalt = domain.Device{Address: "tybalt@capulet.lit", ID: 3}
)

// Cheap scrypt parameters keep the tests fast.
var testKDF = store.WithScryptLogN(10)

type opener func(t *testing.T, passphrase string) domain.Store

func openFileStore(home string) opener {
	return func(t *testing.T, passphrase string) domain.Store {
		s, err := store.NewFileStore(home, local, passphrase, testKDF)
		require.NoError(t, err)
		return s
	}
}

func openBoltStore(path string) opener {
	var last *store.BoltStore
	return func(t *testing.T, passphrase string) domain.Store {
		if last != nil {
			require.NoError(t, last.Close())
		}
		s, err := store.OpenBoltStore(path, local, passphrase, testKDF)
		require.NoError(t, err)
		last = s
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, open opener)) {
	t.Run("file", func(t *testing.T) { fn(t, openFileStore(t.TempDir())) })
	t.Run("bolt", func(t *testing.T) { fn(t, openBoltStore(filepath.Join(t.TempDir(), "omemo.db"))) })
}

func TestIdentityLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "correct horse")

		fresh, err := s.IsFreshInstallation()
		require.NoError(t, err)
		require.True(t, fresh)
		_, ok, err := s.LoadIdentityKeyPair()
		require.NoError(t, err)
		require.False(t, ok)

		pair, err := crypto.NewIdentityKeyPair()
		require.NoError(t, err)
		require.NoError(t, s.StoreIdentityKeyPair(pair))

		fresh, err = s.IsFreshInstallation()
		require.NoError(t, err)
		require.False(t, fresh)

		got, ok, err := s.LoadIdentityKeyPair()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, pair, got)

		// Reopening with another passphrase cannot unseal it.
		s = open(t, "battery staple")
		_, _, err = s.LoadIdentityKeyPair()
		require.ErrorIs(t, err, store.ErrWrongPassphrase)

		s = open(t, "correct horse")
		got, ok, err = s.LoadIdentityKeyPair()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, pair, got)
	})
}

func TestMismatchedIdentityHalvesAreCorrupt(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "correct horse")

		pair, err := crypto.NewIdentityKeyPair()
		require.NoError(t, err)
		pair.Private[40] ^= 0x01
		require.NoError(t, s.StoreIdentityKeyPair(pair))

		_, ok, err := s.LoadIdentityKeyPair()
		require.ErrorIs(t, err, domain.ErrCorruptedKey)
		require.False(t, ok)
	})
}

func TestPurgeRemovesLocalKeyMaterial(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")

		pair, err := crypto.NewIdentityKeyPair()
		require.NoError(t, err)
		require.NoError(t, s.StoreIdentityKeyPair(pair))
		require.NoError(t, s.StorePreKey(domain.OneTimePreKey{ID: 1}))
		require.NoError(t, s.StoreLastPreKeyID(1))
		require.NoError(t, s.StoreSignedPreKey(domain.SignedPreKey{ID: 1, Signature: []byte{1}}))
		require.NoError(t, s.StoreCurrentSignedPreKeyID(1))
		require.NoError(t, s.StoreRawSession(romeo, []byte("session")))
		require.NoError(t, s.StoreIdentityKey(romeo, pair.Public))
		require.NoError(t, s.Trust(romeo, "abcd"))
		require.NoError(t, s.StoreCachedDeviceList(romeo.Address, domain.CachedDeviceList{Active: []domain.DeviceID{7}}))

		require.NoError(t, s.Purge())

		fresh, err := s.IsFreshInstallation()
		require.NoError(t, err)
		require.True(t, fresh)

		keys, err := s.LoadPreKeys()
		require.NoError(t, err)
		require.Empty(t, keys)
		last, err := s.LoadLastPreKeyID()
		require.NoError(t, err)
		require.Zero(t, last)
		signed, err := s.LoadSignedPreKeys()
		require.NoError(t, err)
		require.Empty(t, signed)
		_, ok, err := s.LoadCurrentSignedPreKeyID()
		require.NoError(t, err)
		require.False(t, ok)
		ok, err = s.ContainsSession(romeo)
		require.NoError(t, err)
		require.False(t, ok)

		// Knowledge about remote devices survives.
		trusted, err := s.IsTrusted(romeo, "abcd")
		require.NoError(t, err)
		require.True(t, trusted)
		_, ok, err = s.LoadIdentityKey(romeo)
		require.NoError(t, err)
		require.True(t, ok)
		list, err := s.LoadCachedDeviceList(romeo.Address)
		require.NoError(t, err)
		require.Equal(t, []domain.DeviceID{7}, list.Active)
	})
}

func TestTrustDecisions(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")
		const fp = domain.Fingerprint("0011223344556677")

		decided, err := s.IsDecided(romeo, fp)
		require.NoError(t, err)
		require.False(t, decided)

		require.NoError(t, s.Trust(romeo, fp))
		decided, err = s.IsDecided(romeo, fp)
		require.NoError(t, err)
		require.True(t, decided)
		trusted, err := s.IsTrusted(romeo, fp)
		require.NoError(t, err)
		require.True(t, trusted)

		require.NoError(t, s.Distrust(romeo, fp))
		decided, err = s.IsDecided(romeo, fp)
		require.NoError(t, err)
		require.True(t, decided)
		trusted, err = s.IsTrusted(romeo, fp)
		require.NoError(t, err)
		require.False(t, trusted)

		// Decisions are per (device, fingerprint).
		decided, err = s.IsDecided(romeo, "ffff")
		require.NoError(t, err)
		require.False(t, decided)
		decided, err = s.IsDecided(tybalt, fp)
		require.NoError(t, err)
		require.False(t, decided)
	})
}

func TestPreKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")

		keys := map[domain.OneTimePreKeyID]domain.OneTimePreKey{}
		for id := domain.OneTimePreKeyID(1); id <= 3; id++ {
			priv, pub, err := crypto.GenerateX25519()
			require.NoError(t, err)
			keys[id] = domain.OneTimePreKey{ID: id, Private: priv, Public: pub}
		}
		require.NoError(t, s.StorePreKeys(keys))
		require.NoError(t, s.StoreLastPreKeyID(3))

		got, err := s.LoadPreKeys()
		require.NoError(t, err)
		require.Equal(t, keys, got)

		require.NoError(t, s.RemovePreKey(2))
		require.NoError(t, s.RemovePreKey(42))
		_, ok, err := s.LoadPreKey(2)
		require.NoError(t, err)
		require.False(t, ok)
		k, ok, err := s.LoadPreKey(3)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, keys[3], k)

		last, err := s.LoadLastPreKeyID()
		require.NoError(t, err)
		require.Equal(t, domain.OneTimePreKeyID(3), last)
	})
}

func TestSignedPreKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")

		priv, pub, err := crypto.GenerateX25519()
		require.NoError(t, err)
		spk := domain.SignedPreKey{ID: 5, Private: priv, Public: pub, Signature: []byte("sig"), CreatedUTC: 1700000000}
		require.NoError(t, s.StoreSignedPreKey(spk))
		require.NoError(t, s.StoreCurrentSignedPreKeyID(5))

		got, ok, err := s.LoadSignedPreKey(5)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, spk, got)

		id, ok, err := s.LoadCurrentSignedPreKeyID()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.SignedPreKeyID(5), id)

		_, ok, err = s.LoadLastSignedPreKeyRenewal()
		require.NoError(t, err)
		require.False(t, ok)
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.StoreLastSignedPreKeyRenewal(at))
		renewed, ok, err := s.LoadLastSignedPreKeyRenewal()
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, at.Equal(renewed))

		require.NoError(t, s.RemoveSignedPreKey(5))
		all, err := s.LoadSignedPreKeys()
		require.NoError(t, err)
		require.Empty(t, all)
	})
}

func TestSessions(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")
		romeo2 := domain.Device{Address: romeo.Address, ID: 8}

		require.NoError(t, s.StoreRawSession(romeo, []byte("r7")))
		require.NoError(t, s.StoreRawSession(romeo2, []byte("r8")))
		require.NoError(t, s.StoreRawSession(tybalt, []byte("t3")))

		b, ok, err := s.LoadRawSession(romeo2)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("r8"), b)

		all, err := s.LoadAllRawSessionsOf(romeo.Address)
		require.NoError(t, err)
		require.Equal(t, map[domain.DeviceID][]byte{7: []byte("r7"), 8: []byte("r8")}, all)

		require.NoError(t, s.RemoveSession(romeo))
		ok, err = s.ContainsSession(romeo)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.RemoveAllSessionsOf(romeo.Address))
		all, err = s.LoadAllRawSessionsOf(romeo.Address)
		require.NoError(t, err)
		require.Empty(t, all)

		ok, err = s.ContainsSession(tybalt)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestDeviceLists(t *testing.T) {
	forEachStore(t, func(t *testing.T, open opener) {
		s := open(t, "pass")

		list, err := s.LoadCachedDeviceList(romeo.Address)
		require.NoError(t, err)
		require.Empty(t, list.Active)
		require.Empty(t, list.Inactive)

		want := domain.CachedDeviceList{Active: []domain.DeviceID{7, 8}, Inactive: []domain.DeviceID{2}, Version: "v3"}
		require.NoError(t, s.StoreCachedDeviceList(romeo.Address, want))
		list, err = s.LoadCachedDeviceList(romeo.Address)
		require.NoError(t, err)
		require.Equal(t, want, list)

		_, ok, err := s.LoadDefaultDeviceID(romeo.Address)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, s.StoreDefaultDeviceID(romeo.Address, 8))
		id, ok, err := s.LoadDefaultDeviceID(romeo.Address)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.DeviceID(8), id)

		at := time.Date(2024, 5, 4, 3, 2, 1, 0, time.UTC)
		require.NoError(t, s.StoreLastMessageReceived(romeo, at))
		got, ok, err := s.LoadLastMessageReceived(romeo)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, at.Equal(got))
		_, ok, err = s.LoadLastMessageReceived(tybalt)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestDeviceDirIsConfined(t *testing.T) {
	dir := store.DeviceDir("/home", domain.Device{Address: "../../etc", ID: 1})
	require.Equal(t, filepath.Join("/home", "etc", "1"), dir)
}
