package sessioncache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/sessioncache"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	cache := sessioncache.New(path)

	session := domain.Session{
		AuthToken:         "tok-123",
		SecondFactorToken: "2fa-456",
		EstablishedAt:     time.Now().Truncate(time.Second),
	}
	require.NoError(t, cache.Save(session))

	loaded, ok, err := cache.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, session.AuthToken, loaded.AuthToken)
	require.Equal(t, session.SecondFactorToken, loaded.SecondFactorToken)
	require.True(t, session.EstablishedAt.Equal(loaded.EstablishedAt))
}

func TestCacheFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	cache := sessioncache.New(path)

	require.NoError(t, cache.Save(domain.Session{AuthToken: "tok"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm(),
		"the cache holds secrets and must be owner-only")
}

func TestCacheMissingFile(t *testing.T) {
	cache := sessioncache.New(filepath.Join(t.TempDir(), "absent.json"))

	_, ok, err := cache.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, ok, err := sessioncache.New(path).Load()
	require.Error(t, err)
	require.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	cache := sessioncache.New(path)

	require.NoError(t, cache.Save(domain.Session{AuthToken: "tok"}))
	require.NoError(t, cache.Clear())

	_, ok, err := cache.Load()
	require.NoError(t, err)
	require.False(t, ok)

	// Clearing again is not an error.
	require.NoError(t, cache.Clear())
}

func TestCacheEmptyTokenTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"authToken":""}`), 0o600))

	_, ok, err := sessioncache.New(path).Load()
	require.NoError(t, err)
	require.False(t, ok)
}
