package prekey_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"omemo/internal/domain"
	"omemo/internal/keyutil"
	"omemo/internal/log"
	"omemo/internal/relay"
	"omemo/internal/services/identity"
	"omemo/internal/services/prekey"
	"omemo/internal/store"
)

var own = domain.Device{Address: "juliet@capulet.lit", ID: 1001}

type fixture struct {
	store  *store.FileStore
	pubsub *relay.Memory
	svc    *prekey.Service
}

func newFixture(t *testing.T, cfg prekey.Config) fixture {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), own, "", store.WithScryptLogN(10))
	require.NoError(t, err)
	backend := log.Discard()
	keys := keyutil.New(backend.GetLogger("keyutil"))
	ps := relay.NewMemory()
	svc := prekey.New(own, s, keys, identity.New(s, keys), ps, cfg, backend.GetLogger("prekey"))
	return fixture{store: s, pubsub: ps, svc: svc}
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 5, MaxSignedPreKeys: 2, RenewAfter: time.Hour})

	fp, err := f.svc.Regenerate()
	require.NoError(t, err)
	require.Len(t, fp.String(), 64)

	pool, err := f.store.LoadPreKeys()
	require.NoError(t, err)
	require.Len(t, pool, 5)
	for id := domain.OneTimePreKeyID(1); id <= 5; id++ {
		require.Contains(t, pool, id)
	}
	last, err := f.store.LoadLastPreKeyID()
	require.NoError(t, err)
	require.Equal(t, domain.OneTimePreKeyID(5), last)

	current, ok, err := f.store.LoadCurrentSignedPreKeyID()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.SignedPreKeyID(1), current)

	// A second regeneration starts over with a new identity.
	fp2, err := f.svc.Regenerate()
	require.NoError(t, err)
	require.NotEqual(t, fp, fp2)
	last, err = f.store.LoadLastPreKeyID()
	require.NoError(t, err)
	require.Equal(t, domain.OneTimePreKeyID(5), last)
}

func TestRotateKeepsBoundedGenerations(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 1, MaxSignedPreKeys: 2, RenewAfter: time.Hour})
	_, err := f.svc.Regenerate()
	require.NoError(t, err)

	now := time.Now()
	rotate, err := f.svc.ShouldRotate(now)
	require.NoError(t, err)
	require.False(t, rotate)
	rotate, err = f.svc.ShouldRotate(now.Add(2 * time.Hour))
	require.NoError(t, err)
	require.True(t, rotate)

	for want := domain.SignedPreKeyID(2); want <= 4; want++ {
		id, err := f.svc.RotateSignedPreKey(now)
		require.NoError(t, err)
		require.Equal(t, want, id)
	}

	all, err := f.store.LoadSignedPreKeys()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Contains(t, all, domain.SignedPreKeyID(3))
	require.Contains(t, all, domain.SignedPreKeyID(4))
}

func TestPackBundleReplenishes(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 4, MaxSignedPreKeys: 1, RenewAfter: time.Hour})
	_, err := f.svc.Regenerate()
	require.NoError(t, err)

	require.NoError(t, f.store.RemovePreKey(1))
	require.NoError(t, f.store.RemovePreKey(3))

	b, err := f.svc.Publish(context.Background())
	require.NoError(t, err)
	require.Len(t, b.PreKeys, 4)
	for _, id := range []domain.OneTimePreKeyID{2, 4, 5, 6} {
		require.Contains(t, b.PreKeys, id)
	}
	last, err := f.store.LoadLastPreKeyID()
	require.NoError(t, err)
	require.Equal(t, domain.OneTimePreKeyID(6), last)

	published, err := f.pubsub.FetchBundle(context.Background(), own)
	require.NoError(t, err)
	require.Equal(t, b.IdentityKey, published.IdentityKey)
	require.Equal(t, domain.SignedPreKeyID(1), published.SignedPreKeyID)
	require.Len(t, published.PreKeys, 4)
}

func TestPreKeyIDsWrap(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 3, MaxSignedPreKeys: 1, RenewAfter: time.Hour})
	_, err := f.svc.Regenerate()
	require.NoError(t, err)

	for id := domain.OneTimePreKeyID(1); id <= 3; id++ {
		require.NoError(t, f.store.RemovePreKey(id))
	}
	require.NoError(t, f.store.StoreLastPreKeyID(keyutil.MaxPreKeyID-1))

	b, err := f.svc.PackBundle()
	require.NoError(t, err)
	for _, id := range []domain.OneTimePreKeyID{keyutil.MaxPreKeyID, 1, 2} {
		require.Contains(t, b.PreKeys, id)
	}
	last, err := f.store.LoadLastPreKeyID()
	require.NoError(t, err)
	require.Equal(t, domain.OneTimePreKeyID(2), last)
}

func TestPackBundleWithoutIdentity(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 3, MaxSignedPreKeys: 1})
	_, err := f.svc.PackBundle()
	require.ErrorIs(t, err, domain.ErrNoIdentity)
}

func TestConcurrentPackBundleMatchesPool(t *testing.T) {
	f := newFixture(t, prekey.Config{TargetCount: 4, MaxSignedPreKeys: 1, RenewAfter: time.Hour})
	_, err := f.svc.Regenerate()
	require.NoError(t, err)

	for range 10 {
		pool, err := f.store.LoadPreKeys()
		require.NoError(t, err)
		for id := range pool {
			require.NoError(t, f.store.RemovePreKey(id))
		}

		bundles := make([]domain.Bundle, 4)
		errs := make([]error, len(bundles))
		var wg sync.WaitGroup
		for i := range bundles {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					bundles[i], errs[i] = f.svc.PackBundle()
				} else {
					bundles[i], errs[i] = f.svc.Publish(context.Background())
				}
			}()
		}
		wg.Wait()

		pool, err = f.store.LoadPreKeys()
		require.NoError(t, err)
		require.Len(t, pool, 4)
		for i, b := range bundles {
			require.NoError(t, errs[i])
			require.Len(t, b.PreKeys, 4)
			for id, pub := range b.PreKeys {
				k, ok := pool[id]
				require.True(t, ok, "pre-key %d", id)
				require.Equal(t, k.Public[:], pub, "pre-key %d", id)
			}
		}
	}
}
