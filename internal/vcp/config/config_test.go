package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7780", cfg.Address)
	assert.Equal(t, "qemu:///system", cfg.LibvirtURI)
	assert.Equal(t, "default", cfg.InstancesPool)
	assert.Equal(t, Duration(time.Minute), cfg.ReconcileInterval)
	assert.NotEmpty(t, cfg.Host)
	assert.Equal(t, filepath.Join(cfg.DataDir, "vcp.db"), cfg.DBPath)
}

func TestNewFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcp.yaml")
	raw := []byte(`
host: node-1
address: "127.0.0.1:9000"
data_dir: /srv/vcp
peers:
  node-2: "http://node-2:7780"
reconcile_interval: 30s
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	t.Setenv("VCP_CONFIG", path)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.Host)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, "/srv/vcp", cfg.DataDir)
	assert.Equal(t, "http://node-2:7780", cfg.Peers["node-2"])
	assert.Equal(t, Duration(30*time.Second), cfg.ReconcileInterval)
	assert.Equal(t, filepath.Join("/srv/vcp", "state"), cfg.StateDir())
	assert.Equal(t, filepath.Join("/srv/vcp", "images"), cfg.ImagesDir())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: node-file\n"), 0o600))
	t.Setenv("VCP_CONFIG", path)
	t.Setenv("VCP_HOST", "node-env")
	t.Setenv("VCP_DB_PATH", "/tmp/other.db")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "node-env", cfg.Host)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
}

func TestNewConfigFileMissing(t *testing.T) {
	t.Setenv("VCP_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := New()
	assert.Error(t, err)
}
