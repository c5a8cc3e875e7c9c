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
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\nkeyzones:\n  install_dir: /opt/keyzones\n"))
	require.NoError(t, err)

	assert.Equal(t, "python3", c.KeyZones.Interpreter)
	assert.Equal(t, 3.0, c.KeyZones.ZoneSizePercent)
	assert.Equal(t, 2.0, c.KeyZones.MergeDistancePercent)
	assert.Equal(t, 4, c.KeyZones.Workers)
	assert.Equal(t, 60*time.Second, c.KeyZones.DetectorTimeout)
	assert.True(t, c.KeyZones.PreflightCandles)
	assert.False(t, c.KeyZones.MergeStderr)
	assert.Equal(t, "memory", c.Sequencer.Backend)

	assert.Equal(t, "/opt/keyzones/python/keyzones/levels.py", c.KeyZones.ScriptFile())
	assert.Equal(t, "/opt/keyzones/data", c.KeyZones.DataDir())
	assert.Equal(t, "/opt/keyzones/python/keyzones/temp", c.KeyZones.ScratchDir())
}

func TestLoadKeepsAbsolutePaths(t *testing.T) {
	c, err := Load(writeConfig(t, "keyzones:\n  install_dir: /opt/kz\n  scratch_path: /var/tmp/zones\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/zones", c.KeyZones.ScratchDir())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"workers":   "keyzones:\n  workers: 0\n",
		"percent":   "keyzones:\n  zone_size_percent: 150\n",
		"sequencer": "sequencer:\n  backend: etcd\n",
		"kafka":     "kafka:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadEmptyPathUsesInstallDirOfExecutable(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.KeyZones.InstallDir)
	assert.True(t, filepath.IsAbs(c.KeyZones.ScriptFile()))
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("KEYZONES_INTERPRETER", "/usr/bin/python3.11")
	t.Setenv("KEYZONES_WORKERS", "2")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3.11", c.KeyZones.Interpreter)
	assert.Equal(t, 2, c.KeyZones.Workers)
	assert.Equal(t, "cache:6380", c.RedisAddr())
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}
