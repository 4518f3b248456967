package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeEnv(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestKeyStoreVersion(t *testing.T) {
	s := NewKeyStore("")
	key, v := s.APIKey()
	require.Empty(t, key)
	require.Zero(t, v)

	require.True(t, s.Set("a"))
	require.False(t, s.Set("a"))
	require.True(t, s.Set("b"))

	key, v = s.APIKey()
	require.Equal(t, "b", key)
	require.Equal(t, uint64(2), v)
}

func TestDotenvSelector(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	store := NewKeyStore("old-key")
	sel, err := NewDotenvSelector(path, store, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Missing file.
	require.Error(t, sel.Select(context.Background()))

	writeEnv(t, path, "OTHER=1\n")
	require.ErrorIs(t, sel.Select(context.Background()), ErrKeyMissing)

	writeEnv(t, path, "GEMINI_API_KEY=old-key\n")
	require.ErrorIs(t, sel.Select(context.Background()), ErrKeyUnchanged)

	writeEnv(t, path, "# rotated\nGEMINI_API_KEY=\"new-key\"\n")
	require.NoError(t, sel.Select(context.Background()))
	key, v := store.APIKey()
	require.Equal(t, "new-key", key)
	require.Equal(t, uint64(2), v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sel.Select(ctx), context.Canceled)
}

func TestNewDotenvSelectorValidation(t *testing.T) {
	_, err := NewDotenvSelector("", NewKeyStore("k"), zaptest.NewLogger(t))
	require.Error(t, err)
	_, err = NewDotenvSelector(".env", nil, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestStaticSelector(t *testing.T) {
	require.ErrorIs(t, StaticSelector{}.Select(context.Background()), ErrNoSelector)
}
