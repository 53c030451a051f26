package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "upstox", cfg.Fetch.Primary)
	require.True(t, cfg.Fetch.Fallback)
	require.False(t, cfg.Fetch.Offline)
	require.Equal(t, 30, cfg.Fetch.RefreshIntervalSec)
	require.True(t, cfg.Market.HoursCheck)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
	  "server": {"port": "9090"},
	  "fetch": {"primary": "yahoo", "fallback": false, "refresh_interval_sec": 60},
	  "market": {"hours_check": false, "holidays": ["2025-10-02"]},
	  "storage": {"sqlite_path": "history.db"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "yahoo", cfg.Fetch.Primary)
	require.False(t, cfg.Fetch.Fallback)
	require.Equal(t, 60, cfg.Fetch.RefreshIntervalSec)
	require.False(t, cfg.Market.HoursCheck)
	require.Equal(t, []string{"2025-10-02"}, cfg.Market.Holidays)
	require.Equal(t, "history.db", cfg.Storage.SQLitePath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("UPSTOX_ACCESS_TOKEN", "tok")
	t.Setenv("MARKETSTACK_API_KEY", "msk")
	t.Setenv("PRIMARY_PROVIDER", "Yahoo")
	t.Setenv("OFFLINE_MODE", "true")
	t.Setenv("REFRESH_INTERVAL_SEC", "15")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, "tok", cfg.Upstox.AccessToken)
	require.Equal(t, "msk", cfg.MarketStack.APIKey)
	require.Equal(t, "yahoo", cfg.Fetch.Primary)
	require.True(t, cfg.Fetch.Offline)
	require.Equal(t, 15, cfg.Fetch.RefreshIntervalSec)
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{bad"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
