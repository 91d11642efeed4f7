package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"

	"omemo/internal/log"
	"omemo/internal/store"
)

const (
	defaultHome             = "~/.omemo"
	defaultRelayURL         = "http://127.0.0.1:8080"
	defaultLogLevel         = "NOTICE"
	defaultTargetCount      = 100
	defaultMaxSignedPreKeys = 4
	defaultRenewAfterHours  = 7 * 24
	defaultConcurrency      = 8

	// StoreFile keeps one directory of JSON files per device.
	StoreFile = "file"
	// StoreBolt keeps every device in one bbolt database.
	StoreBolt = "bolt"

	boltFilename = "omemo.db"
)

// Store is the key store configuration.
type Store struct {
	// Backend is either "file" or "bolt".
	Backend string

	// ScryptLogN is the scrypt cost the identity is sealed with.
	ScryptLogN int
}

func (s *Store) validate() error {
	switch strings.ToLower(s.Backend) {
	case "":
		s.Backend = StoreFile
	case StoreFile, StoreBolt:
		s.Backend = strings.ToLower(s.Backend)
	default:
		return fmt.Errorf("config: Store: Backend '%v' is invalid", s.Backend)
	}
	if s.ScryptLogN == 0 {
		s.ScryptLogN = store.DefaultScryptLogN
	}
	if s.ScryptLogN < 10 || s.ScryptLogN > 24 {
		return fmt.Errorf("config: Store: ScryptLogN %d is out of range", s.ScryptLogN)
	}
	return nil
}

// PreKeys bounds the pre-key pool.
type PreKeys struct {
	// TargetCount is the number of one-time pre-keys kept published.
	TargetCount int

	// MaxSignedPreKeys is the number of signed pre-key generations kept.
	MaxSignedPreKeys int

	// RenewSignedPreKeyAfterHours is the signed pre-key rotation interval.
	RenewSignedPreKeyAfterHours int
}

func (p *PreKeys) fixup() {
	if p.TargetCount <= 0 {
		p.TargetCount = defaultTargetCount
	}
	if p.MaxSignedPreKeys <= 0 {
		p.MaxSignedPreKeys = defaultMaxSignedPreKeys
	}
	if p.RenewSignedPreKeyAfterHours <= 0 {
		p.RenewSignedPreKeyAfterHours = defaultRenewAfterHours
	}
}

// Devices is the device list configuration.
type Devices struct {
	// IgnoreStaleAfterHours leaves out devices that have not sent a
	// message for this long. Zero keeps every device.
	IgnoreStaleAfterHours int
}

// Fanout bounds concurrent work per message.
type Fanout struct {
	// Concurrency is the number of recipient devices handled at once.
	Concurrency int
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (l *Logging) validate() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	l.Level = strings.ToUpper(l.Level)
	return nil
}

// Config is the top level configuration of one local device.
type Config struct {
	// Home is the directory key material is kept in.
	Home string

	// Address is the bare address of the local account.
	Address string

	// DeviceID is the id of the local device. Zero means not yet chosen.
	DeviceID uint32

	// RelayURL is the base URL of the keyserver.
	RelayURL string

	Store   *Store
	PreKeys *PreKeys
	Devices *Devices
	Fanout  *Fanout
	Logging *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	if c.Address == "" {
		return errors.New("config: Address is not set")
	}
	if strings.ContainsAny(c.Address, ":/") {
		return fmt.Errorf("config: Address '%v' is invalid", c.Address)
	}
	if c.Home == "" {
		c.Home = defaultHome
	}
	home, err := homedir.Expand(c.Home)
	if err != nil {
		return fmt.Errorf("config: Home: %w", err)
	}
	c.Home = home
	if c.RelayURL == "" {
		c.RelayURL = defaultRelayURL
	}

	// Handle missing sections if possible.
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.PreKeys == nil {
		c.PreKeys = &PreKeys{}
	}
	if c.Devices == nil {
		c.Devices = &Devices{}
	}
	if c.Fanout == nil {
		c.Fanout = &Fanout{}
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}

	// Validate/fixup the various sections.
	if err := c.Store.validate(); err != nil {
		return err
	}
	c.PreKeys.fixup()
	if c.Devices.IgnoreStaleAfterHours < 0 {
		return errors.New("config: Devices: IgnoreStaleAfterHours is negative")
	}
	if c.Fanout.Concurrency <= 0 {
		c.Fanout.Concurrency = defaultConcurrency
	}
	if c.Logging.File != "" {
		if c.Logging.File, err = homedir.Expand(c.Logging.File); err != nil {
			return fmt.Errorf("config: Logging: %w", err)
		}
	}
	return c.Logging.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)

	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	f, err := homedir.Expand(f)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Save writes cfg to f as TOML.
func (c *Config) Save(f string) error {
	f, err := homedir.Expand(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f), 0o700); err != nil {
		return err
	}
	out, err := os.OpenFile(f, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(out).Encode(c); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// BoltPath is the database file used by the bolt backend.
func (c *Config) BoltPath() string { return filepath.Join(c.Home, boltFilename) }
