package app

import (
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`Address = "juliet@capulet.lit"`))
	require.NoError(t, err)

	home, err := homedir.Expand(defaultHome)
	require.NoError(t, err)
	require.Equal(t, home, cfg.Home)
	require.Equal(t, defaultRelayURL, cfg.RelayURL)
	require.Equal(t, StoreFile, cfg.Store.Backend)
	require.Equal(t, 15, cfg.Store.ScryptLogN)
	require.Equal(t, 100, cfg.PreKeys.TargetCount)
	require.Equal(t, 4, cfg.PreKeys.MaxSignedPreKeys)
	require.Equal(t, 168, cfg.PreKeys.RenewSignedPreKeyAfterHours)
	require.Zero(t, cfg.Devices.IgnoreStaleAfterHours)
	require.Equal(t, 8, cfg.Fanout.Concurrency)
	require.Equal(t, "NOTICE", cfg.Logging.Level)
}

func TestLoadSections(t *testing.T) {
	cfg, err := Load([]byte(`
Address = "romeo@montague.lit"
DeviceID = 31415
Home = "/var/lib/omemo"

[Store]
Backend = "Bolt"

[PreKeys]
TargetCount = 20

[Devices]
IgnoreStaleAfterHours = 720

[Logging]
Level = "debug"
`))
	require.NoError(t, err)
	require.Equal(t, uint32(31415), cfg.DeviceID)
	require.Equal(t, StoreBolt, cfg.Store.Backend)
	require.Equal(t, filepath.Join("/var/lib/omemo", "omemo.db"), cfg.BoltPath())
	require.Equal(t, 20, cfg.PreKeys.TargetCount)
	require.Equal(t, 720, cfg.Devices.IgnoreStaleAfterHours)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"no address":   `DeviceID = 1`,
		"bad address":  `Address = "a@b.lit:7"`,
		"bad backend":  "Address = \"a@b.lit\"\n[Store]\nBackend = \"sqlite\"",
		"bad level":    "Address = \"a@b.lit\"\n[Logging]\nLevel = \"LOUD\"",
		"weak scrypt":  "Address = \"a@b.lit\"\n[Store]\nScryptLogN = 4",
		"stale < 0":    "Address = \"a@b.lit\"\n[Devices]\nIgnoreStaleAfterHours = -1",
		"invalid toml": `Address = `,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load([]byte(`Address = "juliet@capulet.lit"`))
	require.NoError(t, err)
	cfg.Home = dir
	cfg.DeviceID = 42

	path := filepath.Join(dir, "conf", "omemo.toml")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
