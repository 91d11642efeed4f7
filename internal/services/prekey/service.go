package prekey

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
	"omemo/internal/keyutil"
)

// Config bounds the pre-key pool.
type Config struct {
	TargetCount      int
	MaxSignedPreKeys int
	RenewAfter       time.Duration
}

// Service manages pre-keys and builds the public bundle of one device.
type Service struct {
	own      domain.Device
	store    domain.Store
	keys     domain.KeyUtil
	identity domain.IdentityService
	pubsub   domain.PubSub
	cfg      Config
	log      *logging.Logger

	// mu serialises every change to the pool and the signed pre-keys, so
	// that a published bundle always matches the stored private keys.
	mu  sync.Mutex
	now func() time.Time
}

func New(
	own domain.Device,
	store domain.Store,
	keys domain.KeyUtil,
	identity domain.IdentityService,
	pubsub domain.PubSub,
	cfg Config,
	log *logging.Logger,
) *Service {
	if cfg.MaxSignedPreKeys < 1 {
		cfg.MaxSignedPreKeys = 1
	}
	return &Service{
		own:      own,
		store:    store,
		keys:     keys,
		identity: identity,
		pubsub:   pubsub,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Regenerate wipes the local key material and creates a new identity, the
// first batch of one-time pre-keys and the first signed pre-key.
func (s *Service) Regenerate() (domain.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.identity.Purge(); err != nil {
		return "", err
	}
	_, fp, err := s.identity.GenerateIdentity()
	if err != nil {
		return "", err
	}
	if err := s.store.StoreLastPreKeyID(0); err != nil {
		return "", err
	}
	if _, err := s.replenish(); err != nil {
		return "", err
	}
	if _, err := s.rotate(s.now()); err != nil {
		return "", err
	}
	s.log.Infof("Regenerated key material for %s (%s)", s.own, fp.Pretty())
	return fp, nil
}

// ShouldRotate reports whether the signed pre-key is older than the renewal
// interval. A device without one always needs a rotation.
func (s *Service) ShouldRotate(now time.Time) (bool, error) {
	last, ok, err := s.store.LoadLastSignedPreKeyRenewal()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) > s.cfg.RenewAfter, nil
}

// RotateSignedPreKey creates the next signed pre-key, makes it current and
// drops the generations beyond MaxSignedPreKeys. The older keys stay
// around so that sessions started from them can still be accepted.
func (s *Service) RotateSignedPreKey(now time.Time) (domain.SignedPreKeyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotate(now)
}

func (s *Service) rotate(now time.Time) (domain.SignedPreKeyID, error) {
	pair, err := s.identity.LoadIdentity()
	if err != nil {
		return 0, err
	}
	current, _, err := s.store.LoadCurrentSignedPreKeyID()
	if err != nil {
		return 0, err
	}
	id := current + 1
	if id == 0 {
		id = 1
	}
	spk, err := s.keys.GenerateSignedPreKey(pair, id)
	if err != nil {
		return 0, err
	}
	if err := s.store.StoreSignedPreKey(spk); err != nil {
		return 0, err
	}
	if err := s.store.StoreCurrentSignedPreKeyID(id); err != nil {
		return 0, err
	}
	if err := s.store.StoreLastSignedPreKeyRenewal(now); err != nil {
		return 0, err
	}
	if err := s.pruneSignedPreKeys(id); err != nil {
		return 0, err
	}
	s.log.Infof("Rotated signed pre-key of %s to %d", s.own, id)
	return id, nil
}

func (s *Service) pruneSignedPreKeys(current domain.SignedPreKeyID) error {
	all, err := s.store.LoadSignedPreKeys()
	if err != nil {
		return err
	}
	ids := make([]domain.SignedPreKeyID, 0, len(all))
	for id := range all {
		if id != current {
			ids = append(ids, id)
		}
	}
	// Oldest first by creation time, id breaks ties.
	slices.SortFunc(ids, func(a, b domain.SignedPreKeyID) int {
		return cmp.Or(cmp.Compare(all[a].CreatedUTC, all[b].CreatedUTC), cmp.Compare(a, b))
	})
	for len(ids) > s.cfg.MaxSignedPreKeys-1 {
		if err := s.store.RemoveSignedPreKey(ids[0]); err != nil {
			return err
		}
		s.log.Debugf("Removed signed pre-key %d", ids[0])
		ids = ids[1:]
	}
	return nil
}

// replenish tops the one-time pre-key pool up to the target count and
// returns the whole pool.
func (s *Service) replenish() (map[domain.OneTimePreKeyID]domain.OneTimePreKey, error) {
	pool, err := s.store.LoadPreKeys()
	if err != nil {
		return nil, err
	}
	missing := s.cfg.TargetCount - len(pool)
	if missing <= 0 {
		return pool, nil
	}
	last, err := s.store.LoadLastPreKeyID()
	if err != nil {
		return nil, err
	}
	fresh, err := s.keys.GeneratePreKeys(keyutil.NextPreKeyID(last), missing)
	if err != nil {
		return nil, err
	}
	if err := s.store.StorePreKeys(fresh); err != nil {
		return nil, err
	}
	for range missing {
		last = keyutil.NextPreKeyID(last)
	}
	if err := s.store.StoreLastPreKeyID(last); err != nil {
		return nil, err
	}
	s.log.Debugf("Generated %d one-time pre-keys, last id %d", missing, last)
	if pool == nil {
		pool = make(map[domain.OneTimePreKeyID]domain.OneTimePreKey, len(fresh))
	}
	for id, k := range fresh {
		pool[id] = k
	}
	return pool, nil
}

// PackBundle replenishes the pool and assembles the bundle to publish.
func (s *Service) PackBundle() (domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packBundle()
}

func (s *Service) packBundle() (domain.Bundle, error) {
	pair, err := s.identity.LoadIdentity()
	if err != nil {
		return domain.Bundle{}, err
	}
	pool, err := s.replenish()
	if err != nil {
		return domain.Bundle{}, err
	}
	current, ok, err := s.store.LoadCurrentSignedPreKeyID()
	if err != nil {
		return domain.Bundle{}, err
	}
	if !ok {
		return domain.Bundle{}, domain.ErrNoSignedPreKey
	}
	signed, ok, err := s.store.LoadSignedPreKey(current)
	if err != nil {
		return domain.Bundle{}, err
	}
	if !ok {
		return domain.Bundle{}, domain.ErrNoSignedPreKey
	}
	return s.keys.PackBundle(s.keys.IdentityKeyFromPair(pair), signed, pool), nil
}

// Publish packs the bundle and publishes it for the own device. Concurrent
// calls publish in the order they packed.
func (s *Service) Publish(ctx context.Context) (domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.packBundle()
	if err != nil {
		return domain.Bundle{}, err
	}
	if err := s.pubsub.PublishBundle(ctx, s.own, b); err != nil {
		return domain.Bundle{}, err
	}
	s.log.Debugf("Published bundle of %s with %d pre-keys", s.own, len(b.PreKeys))
	return b, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
