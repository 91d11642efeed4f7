package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
	"omemo/internal/instrument"
)

// Manager builds, loads and uses the sessions of one local device.
type Manager struct {
	store  domain.Store
	keys   domain.KeyUtil
	pubsub domain.PubSub
	log    *logging.Logger

	locks sync.Map // domain.Device -> *sync.Mutex
}

// New returns a Manager.
func New(store domain.Store, keys domain.KeyUtil, pubsub domain.PubSub, log *logging.Logger) *Manager {
	return &Manager{store: store, keys: keys, pubsub: pubsub, log: log}
}

// Session is a snapshot of the session with one remote device. Its crypto
// methods go through the Manager, so they always act on the stored state.
type Session struct {
	m      *Manager
	device domain.Device
	record domain.SessionRecord
}

func (s *Session) Device() domain.Device { return s.device }

func (s *Session) RemoteIdentityKey() domain.IdentityKey { return s.m.keys.RemoteIdentityKey(s.record) }

func (s *Session) Fingerprint() domain.Fingerprint {
	return s.m.keys.Fingerprint(s.RemoteIdentityKey())
}

// Pending reports whether the remote side has not answered yet.
func (s *Session) Pending() bool { return s.record.Pending != nil }

// EncryptKey wraps key for the remote device and ratchets the session.
func (s *Session) EncryptKey(key []byte) ([]byte, bool, error) {
	unlock := s.m.lock(s.device)
	defer unlock()

	var (
		wrapped  []byte
		isPreKey bool
	)
	rec, err := s.m.update(s.device, func(rec *domain.SessionRecord) (err error) {
		wrapped, isPreKey, err = s.m.keys.EncryptKey(rec, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.record = rec
	return wrapped, isPreKey, nil
}

// DecryptKey unwraps a key sent over this session. It does not accept new
// sessions; see Manager.DecryptKey for that.
func (s *Session) DecryptKey(wrapped []byte) ([]byte, error) {
	unlock := s.m.lock(s.device)
	defer unlock()

	var key []byte
	rec, err := s.m.update(s.device, func(rec *domain.SessionRecord) (err error) {
		key, err = s.m.keys.DecryptKey(rec, wrapped)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record = rec
	return key, nil
}

// lock serialises every session operation on device.
func (m *Manager) lock(device domain.Device) func() {
	v, _ := m.locks.LoadOrStore(device, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load reads the stored session. A record that no longer decodes is
// reported as absent so that a new session gets built in its place.
func (m *Manager) load(device domain.Device) (domain.SessionRecord, bool, error) {
	raw, ok, err := m.store.LoadRawSession(device)
	if err != nil || !ok {
		return domain.SessionRecord{}, false, err
	}
	rec, err := m.keys.SessionFromBytes(raw)
	if err != nil {
		m.log.Warningf("Discarding unreadable session with %s: %v", device, err)
		return domain.SessionRecord{}, false, nil
	}
	return rec, true, nil
}

func (m *Manager) save(device domain.Device, rec domain.SessionRecord) error {
	raw, err := m.keys.SessionToBytes(rec)
	if err != nil {
		return err
	}
	return m.store.StoreRawSession(device, raw)
}

// update applies fn to the stored session and persists the result only if
// fn succeeded. The caller holds the device lock.
func (m *Manager) update(device domain.Device, fn func(*domain.SessionRecord) error) (domain.SessionRecord, error) {
	rec, ok, err := m.load(device)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, fmt.Errorf("%w: %s", domain.ErrNoSession, device)
	}
	if err := fn(&rec); err != nil {
		return rec, err
	}
	return rec, m.save(device, rec)
}

func (m *Manager) identity() (domain.IdentityKeyPair, error) {
	pair, ok, err := m.store.LoadIdentityKeyPair()
	if err != nil {
		return pair, err
	}
	if !ok {
		return pair, domain.ErrNoIdentity
	}
	return pair, nil
}

// Get returns the stored session with device.
func (m *Manager) Get(device domain.Device) (*Session, bool, error) {
	unlock := m.lock(device)
	defer unlock()

	rec, ok, err := m.load(device)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Session{m: m, device: device, record: rec}, true, nil
}

// Build fetches the bundle of device, picks one of its pre-keys at random
// and builds a new session, replacing any existing one. Failures only
// concern device and leave the store untouched.
func (m *Manager) Build(ctx context.Context, device domain.Device) (*Session, error) {
	unlock := m.lock(device)
	defer unlock()

	rec, err := m.build(ctx, device)
	if err != nil {
		return nil, err
	}
	return &Session{m: m, device: device, record: rec}, nil
}

// GetOrBuild returns the stored session with device, building one when
// there is none.
func (m *Manager) GetOrBuild(ctx context.Context, device domain.Device) (*Session, error) {
	unlock := m.lock(device)
	defer unlock()

	rec, ok, err := m.load(device)
	if err != nil {
		return nil, err
	}
	if !ok {
		if rec, err = m.build(ctx, device); err != nil {
			return nil, err
		}
	}
	return &Session{m: m, device: device, record: rec}, nil
}

func (m *Manager) build(ctx context.Context, device domain.Device) (domain.SessionRecord, error) {
	rec, err := m.initiate(ctx, device)
	if err != nil {
		instrument.SessionBuildFailed()
		m.log.Warningf("Cannot establish session with %s: %v", device, err)
		return rec, &domain.CannotEstablishSessionError{Device: device, Err: err}
	}
	instrument.SessionBuilt("initiator")
	m.log.Debugf("Built session with %s using pre-key %d", device, rec.Pending.OneTimePreKeyID)
	return rec, nil
}

func (m *Manager) initiate(ctx context.Context, device domain.Device) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	ours, err := m.identity()
	if err != nil {
		return rec, err
	}
	wire, err := m.pubsub.FetchBundle(ctx, device)
	if err != nil {
		return rec, err
	}
	bundles, err := m.keys.Bundles(wire, device)
	if err != nil {
		return rec, err
	}
	ids := make([]domain.OneTimePreKeyID, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	chosen := bundles[ids[rand.IntN(len(ids))]]

	if rec, err = m.keys.InitiateSession(ours, chosen); err != nil {
		return rec, err
	}
	prev, hadPrev, err := m.store.LoadRawSession(device)
	if err != nil {
		return rec, err
	}
	if err := m.save(device, rec); err != nil {
		return rec, err
	}
	if err := m.store.StoreIdentityKey(device, rec.RemoteIdentity); err != nil {
		m.restore(device, prev, hadPrev)
		return rec, err
	}
	return rec, nil
}

// restore puts back the session that was stored before a failed build.
func (m *Manager) restore(device domain.Device, prev []byte, hadPrev bool) {
	var err error
	if hadPrev {
		err = m.store.StoreRawSession(device, prev)
	} else {
		err = m.store.RemoveSession(device)
	}
	if err != nil {
		m.log.Errorf("Cannot roll back session with %s: %v", device, err)
	}
}

// Accept handles the pre-key message wrapped sent by device. A
// retransmission for the current session reuses it. Otherwise a new session
// is built from the local pre-keys the message names, persisted, and the
// one-time pre-key it used is removed from the pool. Accept does not unwrap
// the key; DecryptKey does both in one step.
func (m *Manager) Accept(device domain.Device, wrapped []byte) (*Session, bool, error) {
	unlock := m.lock(device)
	defer unlock()

	rec, consumed, fresh, err := m.accept(device, wrapped)
	if err != nil {
		return nil, false, err
	}
	if fresh {
		if err := m.commitAccepted(device, rec, consumed); err != nil {
			return nil, false, err
		}
	}
	return &Session{m: m, device: device, record: rec}, consumed != 0, nil
}

// accept returns the session wrapped belongs to, building it in memory if
// needed. consumed is the one-time pre-key a fresh session used.
func (m *Manager) accept(device domain.Device, wrapped []byte) (rec domain.SessionRecord, consumed domain.OneTimePreKeyID, fresh bool, err error) {
	existing, ok, err := m.load(device)
	if err != nil {
		return rec, 0, false, err
	}
	if ok && m.keys.MatchesBaseKey(existing, wrapped) {
		return existing, 0, false, nil
	}

	ours, err := m.identity()
	if err != nil {
		return rec, 0, false, err
	}
	signedID, oneTimeID, err := m.keys.PreKeyIDs(wrapped)
	if err != nil {
		return rec, 0, false, err
	}
	signed, ok, err := m.store.LoadSignedPreKey(signedID)
	if err != nil {
		return rec, 0, false, err
	}
	if !ok {
		return rec, 0, false, fmt.Errorf("%w: id %d", domain.ErrNoSignedPreKey, signedID)
	}
	var oneTime *domain.OneTimePreKey
	if oneTimeID != 0 {
		k, ok, err := m.store.LoadPreKey(oneTimeID)
		if err != nil {
			return rec, 0, false, err
		}
		if !ok {
			return rec, 0, false, fmt.Errorf("%w: one-time pre-key %d unknown or used up", domain.ErrInvalidKey, oneTimeID)
		}
		oneTime = &k
	}
	rec, err = m.keys.AcceptSession(ours, signed, oneTime, device, wrapped)
	if err != nil {
		return rec, 0, false, err
	}
	return rec, oneTimeID, true, nil
}

func (m *Manager) commitAccepted(device domain.Device, rec domain.SessionRecord, consumed domain.OneTimePreKeyID) error {
	if err := m.save(device, rec); err != nil {
		return err
	}
	if err := m.store.StoreIdentityKey(device, rec.RemoteIdentity); err != nil {
		return err
	}
	instrument.SessionBuilt("responder")
	if consumed != 0 {
		if err := m.store.RemovePreKey(consumed); err != nil {
			return err
		}
		instrument.PreKeyConsumed()
		m.log.Debugf("Session with %s used up pre-key %d", device, consumed)
	}
	return nil
}

// Remove deletes the session with device.
func (m *Manager) Remove(device domain.Device) error {
	unlock := m.lock(device)
	defer unlock()
	return m.store.RemoveSession(device)
}

// Ensure makes sure a session with device exists and returns the
// fingerprint of its identity.
func (m *Manager) Ensure(ctx context.Context, device domain.Device) (domain.Fingerprint, error) {
	s, err := m.GetOrBuild(ctx, device)
	if err != nil {
		return "", err
	}
	return s.Fingerprint(), nil
}

// EncryptKey wraps key for device over the stored session.
func (m *Manager) EncryptKey(device domain.Device, key []byte) ([]byte, bool, error) {
	s := &Session{m: m, device: device}
	return s.EncryptKey(key)
}

// DecryptKey unwraps the key in header, which device sent. A pre-key
// message first accepts the session it announces; nothing about that
// session is persisted unless the key unwraps.
func (m *Manager) DecryptKey(device domain.Device, header domain.KeyHeader) ([]byte, domain.SessionInfo, error) {
	unlock := m.lock(device)
	defer unlock()

	var (
		rec      domain.SessionRecord
		consumed domain.OneTimePreKeyID
		fresh    bool
		err      error
	)
	if header.IsPreKeyMessage {
		rec, consumed, fresh, err = m.accept(device, header.WrappedKey)
	} else {
		var ok bool
		rec, ok, err = m.load(device)
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s", domain.ErrNoSession, device)
		}
	}
	if err != nil {
		return nil, domain.SessionInfo{}, err
	}

	key, err := m.keys.DecryptKey(&rec, header.WrappedKey)
	if err != nil {
		return nil, domain.SessionInfo{}, err
	}
	if fresh {
		err = m.commitAccepted(device, rec, consumed)
	} else {
		err = m.save(device, rec)
	}
	if err != nil {
		return nil, domain.SessionInfo{}, err
	}
	return key, domain.SessionInfo{
		Fingerprint:    m.keys.Fingerprint(rec.RemoteIdentity),
		PreKeyConsumed: consumed != 0,
	}, nil
}

// Compile-time assertion that Manager implements domain.SessionService.
var _ domain.SessionService = (*Manager)(nil)
