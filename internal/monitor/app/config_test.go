package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/app"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

func TestParseWatchlist(t *testing.T) {
	data := []byte(`
cache_session: true
totp_secret: JBSWY3DPEHPK3PXP
accounts:
  - id: usr_1
    label: Alice
    poll_interval: 2m
    volume: 0.5
  - id: usr_2
    poll_interval: 30s
  - id: usr_3
`)

	list, err := app.ParseWatchlist(data)
	require.NoError(t, err)
	require.True(t, list.CacheSession)
	require.Equal(t, "JBSWY3DPEHPK3PXP", list.TOTPSecret)
	require.Len(t, list.Accounts, 3)

	alice := list.Accounts[0]
	require.Equal(t, "usr_1", alice.AccountID)
	require.Equal(t, "Alice", alice.DisplayLabel)
	require.Equal(t, 2*time.Minute, alice.PollInterval)
	require.NotNil(t, alice.VolumeHint)
	require.InDelta(t, 0.5, *alice.VolumeHint, 0.001)

	// A positive sub-minute interval is honored as configured.
	require.Equal(t, 30*time.Second, list.Accounts[1].PollInterval)

	// Missing interval and label: floor and id fallback.
	require.Equal(t, domain.MinPollInterval, list.Accounts[2].PollInterval)
	require.Equal(t, "usr_3", list.Accounts[2].DisplayLabel)
}

func TestParseWatchlistRejectsMissingID(t *testing.T) {
	_, err := app.ParseWatchlist([]byte("accounts:\n  - label: nameless\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing id")
}

func TestParseWatchlistUnparseableIntervalUsesFloor(t *testing.T) {
	list, err := app.ParseWatchlist([]byte("accounts:\n  - id: usr_1\n    poll_interval: soon\n"))
	require.NoError(t, err)
	require.Equal(t, domain.MinPollInterval, list.Accounts[0].PollInterval)
}

func TestParseWatchlistNonPositiveIntervalUsesFloor(t *testing.T) {
	list, err := app.ParseWatchlist([]byte("accounts:\n  - id: usr_1\n    poll_interval: 0s\n  - id: usr_2\n    poll_interval: -5s\n"))
	require.NoError(t, err)
	require.Equal(t, domain.MinPollInterval, list.Accounts[0].PollInterval)
	require.Equal(t, domain.MinPollInterval, list.Accounts[1].PollInterval)
}

func TestParseWatchlistInvalidYAML(t *testing.T) {
	_, err := app.ParseWatchlist([]byte("accounts: ["))
	require.Error(t, err)
}

func TestEffectivePollIntervalFloor(t *testing.T) {
	account := domain.WatchedAccount{AccountID: "usr_1", PollInterval: -time.Second}
	require.Equal(t, domain.MinPollInterval, account.EffectivePollInterval())

	account.PollInterval = 30 * time.Second
	require.Equal(t, 30*time.Second, account.EffectivePollInterval())

	account.PollInterval = 5 * time.Minute
	require.Equal(t, 5*time.Minute, account.EffectivePollInterval())
}
