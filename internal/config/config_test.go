package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Crawler.Concurrency)
	require.Equal(t, 5, cfg.Crawler.MaxPages)
	require.Equal(t, 2, cfg.Crawler.PageAttempts)
	require.Equal(t, 45*time.Second, cfg.NavTimeout())
	require.Equal(t, 1500*time.Millisecond, cfg.Stagger())
	require.Equal(t, "job_records", cfg.DB.Table)
	require.Equal(t, []string{"townwork", "machbaito", "hellowork"}, cfg.Sources)
	require.True(t, cfg.Logging.Development)
	require.False(t, cfg.Server.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawler:
  concurrency: 5
  max_pages: 2
  snapshot_pages: true
snapshots:
  provider: local
  base_dir: /tmp/snaps
identity:
  user_agents:
    - agent-a
    - agent-b
sources:
  - townwork
filter:
  large_company_threshold: 500
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Crawler.Concurrency)
	require.Equal(t, 2, cfg.Crawler.MaxPages)
	require.True(t, cfg.Crawler.SnapshotPages)
	require.Equal(t, "local", cfg.Snapshots.Provider)
	require.Equal(t, []string{"agent-a", "agent-b"}, cfg.Identity.UserAgents)
	require.Equal(t, []string{"townwork"}, cfg.Sources)
	require.Equal(t, 500, cfg.Filter.LargeCompanyThreshold)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Crawler.Concurrency = 0
	require.ErrorContains(t, bad.Validate(), "concurrency")

	bad = cfg
	bad.Snapshots.Provider = "local"
	require.ErrorContains(t, bad.Validate(), "base_dir")

	bad = cfg
	bad.Snapshots.Provider = "s3"
	require.ErrorContains(t, bad.Validate(), "snapshots.provider")

	bad = cfg
	bad.Sources = nil
	require.ErrorContains(t, bad.Validate(), "source")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
