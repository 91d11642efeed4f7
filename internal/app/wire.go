package app

import (
	"errors"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
	"omemo/internal/keyutil"
	"omemo/internal/log"
	"omemo/internal/relay"
	devicelistsvc "omemo/internal/services/devicelist"
	identitysvc "omemo/internal/services/identity"
	messagesvc "omemo/internal/services/message"
	prekeysvc "omemo/internal/services/prekey"
	sessionsvc "omemo/internal/services/session"
	trustsvc "omemo/internal/services/trust"
	"omemo/internal/store"
)

// ErrNoDeviceID is returned when the configuration names no local device.
var ErrNoDeviceID = errors.New("app: DeviceID is not set; run init first")

// Wire bundles the store, services and clients of one local device.
type Wire struct {
	Config *Config
	Own    domain.Device

	LogBackend *log.Backend
	Log        *logging.Logger

	Store    domain.Store
	Keys     *keyutil.Util
	PubSub   domain.PubSub
	Identity *identitysvc.Service
	PreKeys  *prekeysvc.Service
	Sessions *sessionsvc.Manager
	Trust    *trustsvc.Service
	Devices  *devicelistsvc.Cache
	Messages *messagesvc.Service

	closeStore func() error
}

// NewWire constructs the dependency graph from cfg. The identity is sealed
// under passphrase. A nil client defaults to http.DefaultClient.
func NewWire(cfg *Config, passphrase string, client *http.Client) (*Wire, error) {
	if cfg.DeviceID == 0 {
		return nil, ErrNoDeviceID
	}
	own := domain.Device{Address: domain.Address(cfg.Address), ID: domain.DeviceID(cfg.DeviceID)}

	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	w := &Wire{
		Config:     cfg,
		Own:        own,
		LogBackend: backend,
		Log:        backend.GetLogger("app"),
		closeStore: func() error { return nil },
	}

	// Key store
	scrypt := store.WithScryptLogN(cfg.Store.ScryptLogN)
	switch cfg.Store.Backend {
	case StoreBolt:
		bs, err := store.OpenBoltStore(cfg.BoltPath(), own, passphrase, scrypt)
		if err != nil {
			backend.Close()
			return nil, err
		}
		w.Store, w.closeStore = bs, bs.Close
	default:
		fs, err := store.NewFileStore(cfg.Home, own, passphrase, scrypt)
		if err != nil {
			backend.Close()
			return nil, err
		}
		w.Store = fs
	}

	// Keyserver client
	rc := relay.NewHTTP(cfg.RelayURL)
	if client != nil {
		rc.HTTP = client
	}
	w.PubSub = rc

	// High-level services
	w.Keys = keyutil.New(backend.GetLogger("keyutil"))
	w.Identity = identitysvc.New(w.Store, w.Keys)
	w.PreKeys = prekeysvc.New(own, w.Store, w.Keys, w.Identity, w.PubSub, prekeysvc.Config{
		TargetCount:      cfg.PreKeys.TargetCount,
		MaxSignedPreKeys: cfg.PreKeys.MaxSignedPreKeys,
		RenewAfter:       time.Duration(cfg.PreKeys.RenewSignedPreKeyAfterHours) * time.Hour,
	}, backend.GetLogger("prekey"))
	w.Sessions = sessionsvc.New(w.Store, w.Keys, w.PubSub, backend.GetLogger("session"))
	w.Trust = trustsvc.New(w.Store)
	w.Devices = devicelistsvc.New(own, w.Store, w.PubSub,
		time.Duration(cfg.Devices.IgnoreStaleAfterHours)*time.Hour, backend.GetLogger("devicelist"))
	w.Messages = messagesvc.New(own, w.Sessions, w.Trust, w.Devices, w.PreKeys,
		cfg.Fanout.Concurrency, backend.GetLogger("message"))
	return w, nil
}

// Close releases the store and the log file.
func (w *Wire) Close() error {
	return errors.Join(w.closeStore(), w.LogBackend.Close())
}
