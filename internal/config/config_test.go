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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_RepositoryFile(t *testing.T) {
	cfg, err := LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Store.Type)
	assert.Equal(t, 100, cfg.Sensor.HostWindowSize)
	assert.Equal(t, 60*time.Second, Duration(cfg.Sensor.FlowTimeout))
	assert.Equal(t, "gons.flows.sealed", cfg.NATS.Subject)
	assert.Equal(t, 8, cfg.NATS.Workers)
}

func TestLoadConfig_DefaultsFillMissingSections(t *testing.T) {
	path := writeConfig(t, "analyzer:\n  listen_addr: \":6000\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Analyzer.ListenAddr)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 2*time.Second, Duration(cfg.Sensor.TimeWindow))
	assert.True(t, cfg.Security.Enabled)
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad duration":    "reviewer:\n  interval: soon\n",
		"bad store":       "store:\n  type: redis\n",
		"bad transport":   "transport:\n  type: carrier-pigeon\n",
		"bad suite":       "security:\n  suite: rot13\n",
		"bad archive":     "archive:\n  type: s3\n",
		"bad window size": "sensor:\n  host_window_size: 0\n",
		"bad flush":       "archive:\n  flush_interval: later\n",
		"bad check":       "alerter:\n  check_interval: often\n",
		"bad workers":     "nats:\n  workers: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
