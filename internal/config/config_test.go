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

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 3, cfg.Sync.Concurrency)
	require.Equal(t, "entity_list.txt", cfg.Sync.RosterPath)
	require.Equal(t, "download", cfg.Storage.BaseDir)
	require.Equal(t, "reports", cfg.Storage.GCSPrefix)
	require.Equal(t, "INBOX", cfg.Mailbox.Mailbox)
	require.Equal(t, 2, cfg.Mailbox.SinceDays)
	require.False(t, cfg.Portal.Enabled)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, 30*time.Second, cfg.DownloadTimeout())
	require.Equal(t, 45*time.Second, cfg.PortalNavTimeout())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
sync:
  concurrency: 5
  roster_path: fleet.txt
storage:
  base_dir: /tmp/artifacts
  gcs_bucket: fleet-reports
mailbox:
  addr: imap.example.com:993
  username: reports
  password: secret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 5, cfg.Sync.Concurrency)
	require.Equal(t, "fleet.txt", cfg.Sync.RosterPath)
	require.Equal(t, "fleet-reports", cfg.Storage.GCSBucket)
	require.Equal(t, "imap.example.com:993", cfg.Mailbox.Addr)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		Server:  ServerConfig{Port: 8080},
		Sync:    SyncConfig{RosterPath: "entity_list.txt", Concurrency: 3, DownloadTimeoutSeconds: 30},
		Storage: StorageConfig{BaseDir: "download"},
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Sync.Concurrency = -1
	require.Error(t, bad.Validate())

	bad = base
	bad.Sync.RosterPath = ""
	require.Error(t, bad.Validate())

	bad = base
	bad.Storage.BaseDir = ""
	require.Error(t, bad.Validate())

	bad = base
	bad.Portal.Enabled = true
	require.Error(t, bad.Validate())

	ok := base
	ok.Portal.Enabled = true
	ok.Portal.LoginURL = "https://portal.example.com/login"
	ok.Portal.ReportURLTemplate = "https://portal.example.com/vehicles/%s/reports"
	require.NoError(t, ok.Validate())
}
