package fraud

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 2*time.Hour, cfg.LocationWindow)
	require.Equal(t, 5, cfg.LocationSessionLimit)
	require.Equal(t, 2, cfg.MaxDistinctIPs)
	require.Equal(t, 24*time.Hour, cfg.DeviceWindow)
	require.Equal(t, 2, cfg.MaxDistinctDevices)
	require.Equal(t, 6, cfg.WorkdayStartHour)
	require.Equal(t, 23, cfg.WorkdayEndHour)
	require.Equal(t, 12.0, cfg.MaxDailyHours)
	require.Equal(t, 4*time.Hour, cfg.DenialWindow)
	require.Equal(t, 20, cfg.DenialSampleLimit)
	require.Equal(t, 50.0, cfg.MaxDenialPercent)
	require.Equal(t, int64(10000), cfg.SmallScreenshotBytes)
	require.Equal(t, 2, cfg.MaxSmallScreenshots)
	require.Equal(t, 10*time.Second, cfg.QueryTimeout)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("overrides merge with defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_daily_hours: 10\nmax_distinct_ips: 4\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 10.0, cfg.MaxDailyHours)
		require.Equal(t, 4, cfg.MaxDistinctIPs)
		require.Equal(t, 2*time.Hour, cfg.LocationWindow)
	})

	t.Run("explicit zeros override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path,
			[]byte("workday_start_hour: 0\nmax_denial_percent: 0\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 0, cfg.WorkdayStartHour)
		require.Equal(t, 0.0, cfg.MaxDenialPercent)
		require.Equal(t, 23, cfg.WorkdayEndHour)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_denial_percent: 150\n"), 0o600))

		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}
