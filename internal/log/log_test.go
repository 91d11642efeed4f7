package log_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"omemo/internal/log"
)

func TestParseLevel(t *testing.T) {
	lvl, err := log.ParseLevel("warning")
	require.NoError(t, err)
	require.Equal(t, logging.WARNING, lvl)

	_, err = log.ParseLevel("LOUD")
	require.Error(t, err)

	_, err = log.New("", "LOUD", false)
	require.Error(t, err)
}

func TestFileBackendFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omemo.log")
	b, err := log.New(path, "NOTICE", false)
	require.NoError(t, err)

	l := b.GetLogger("session")
	l.Debug("hidden detail")
	l.Notice("built session with juliet@capulet.lit:7")
	b.GetGoLogger("http", "WARNING").Println("listener closed")
	require.NoError(t, b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	require.Contains(t, out, "session: built session with juliet@capulet.lit:7")
	require.Contains(t, out, "http: listener closed")
	require.False(t, strings.Contains(out, "hidden detail"))
}
