package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Matchmaking.ScanBudget)
	assert.Equal(t, "reject", cfg.Matchmaking.DeletePolicy)
	assert.Equal(t, 10, cfg.ServiceClasses["small"])
	assert.Equal(t, 500*time.Millisecond, cfg.Notify.InitialBackoff)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9090
matchmaking:
  scan_budget: 20ms
  delete_policy: cascade
service_classes:
  tiny: 2
notify:
  workers: 1
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.Matchmaking.ScanBudget)
	assert.Equal(t, 256, cfg.Matchmaking.ScanBatch)
	assert.Equal(t, "cascade", cfg.Matchmaking.DeletePolicy)
	assert.Equal(t, map[string]int{"tiny": 2}, cfg.ServiceClasses)
	assert.Equal(t, 1, cfg.Notify.Workers)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GATHER_PORT", "7070")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"delete policy": "matchmaking:\n  delete_policy: purge\n",
		"scan budget":   "matchmaking:\n  scan_budget: 0s\n",
		"page sizes":    "matchmaking:\n  default_page_size: 10\n  max_page_size: 5\n",
		"mode":          "mode: staging\n",
		"log level":     "log_level: loud\n",
		"backoff":       "notify:\n  initial_backoff: 2s\n  max_backoff: 1s\n",
		"class":         "service_classes:\n  tiny: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
