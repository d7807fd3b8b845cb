package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  driver: csv
  path: ./data.csv
model:
  artifact_path: ./model.json
loader:
  initial_interval: 250ms
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, c.Model.WindowSize)
	assert.Equal(t, "single", c.Train.Mode)
	assert.Equal(t, "none", c.Cache.Mode)
	assert.Equal(t, "market_data", c.Source.Table)
	assert.True(t, c.Strict())
	assert.True(t, c.ModelRequired())
	assert.Equal(t, int64(250), c.Loader.InitialInterval.Milliseconds())
}

func TestLoadLenientTimestamps(t *testing.T) {
	path := writeConfig(t, `
source: {driver: csv, path: x.csv}
model: {artifact_path: m.json}
loader: {strict_timestamps: false}
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Strict())
}

func TestLoadOptionalModel(t *testing.T) {
	path := writeConfig(t, `
source: {driver: csv, path: x.csv}
model: {artifact_path: m.json, required: false}
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.ModelRequired())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no driver", "model: {artifact_path: m.json}"},
		{"unknown driver", "source: {driver: mongo}\nmodel: {artifact_path: m.json}"},
		{"postgres without dsn", "source: {driver: postgres}\nmodel: {artifact_path: m.json}"},
		{"no artifact", "source: {driver: csv, path: x.csv}"},
		{"redis cache without redis", "source: {driver: csv, path: x.csv}\nmodel: {artifact_path: m.json}\ncache: {mode: redis}"},
		{"bad mode", "source: {driver: csv, path: x.csv}\nmodel: {artifact_path: m.json}\ntrain: {mode: both}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "source: {driver: csv, path: x.csv}\nmodel: {artifact_path: m.json}\n")
	t.Setenv("MODEL_PATH", "/tmp/other.json")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.json", c.Model.ArtifactPath)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
}

func TestShippedConfigIsValid(t *testing.T) {
	_, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
}
