package app_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"omemo/internal/app"
	"omemo/internal/log"
	"omemo/internal/relay"
)

func newWire(t *testing.T, relayURL, address string, id uint32, backend string) *app.Wire {
	t.Helper()
	cfg := &app.Config{
		Home:     t.TempDir(),
		Address:  address,
		DeviceID: id,
		RelayURL: relayURL,
		Store:    &app.Store{Backend: backend, ScryptLogN: 10},
		PreKeys:  &app.PreKeys{TargetCount: 10},
		Logging:  &app.Logging{Disable: true},
	}
	require.NoError(t, cfg.FixupAndValidate())
	w, err := app.NewWire(cfg, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWireEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(relay.Handler(relay.NewMemory(), log.Discard().GetLogger("keyserver")))
	defer srv.Close()

	juliet := newWire(t, srv.URL, "juliet@capulet.lit", 1, app.StoreFile)
	romeo := newWire(t, srv.URL, "romeo@montague.lit", 2, app.StoreBolt)

	julietFP, err := juliet.Setup(ctx, time.Now())
	require.NoError(t, err)
	romeoFP, err := romeo.Setup(ctx, time.Now())
	require.NoError(t, err)

	require.NoError(t, juliet.Trust.Trust(romeo.Own, romeoFP))
	env, results, err := juliet.Messages.Encrypt(ctx, []byte("parting is such sweet sorrow"), romeo.Own.Address)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	msg, ok, err := romeo.Messages.Decrypt(ctx, juliet.Own.Address, env)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "parting is such sweet sorrow", string(msg.Plaintext))
	require.Equal(t, julietFP, msg.Fingerprint)

	// Setup on an existing installation keeps the identity.
	again, err := juliet.Setup(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, julietFP, again)

	purged, err := juliet.Purge(ctx, time.Now())
	require.NoError(t, err)
	require.NotEqual(t, julietFP, purged)
}

func TestWireNeedsDeviceID(t *testing.T) {
	cfg := &app.Config{Address: "juliet@capulet.lit", Home: t.TempDir()}
	require.NoError(t, cfg.FixupAndValidate())
	_, err := app.NewWire(cfg, "", nil)
	require.ErrorIs(t, err, app.ErrNoDeviceID)
}
