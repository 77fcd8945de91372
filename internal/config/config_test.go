package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.GetPort())
	assert.Equal(t, BackendNative, cfg.GetBackend())
	assert.Equal(t, uint64(1), cfg.GetSeed())
	assert.False(t, cfg.GetCompact())
	assert.Empty(t, cfg.GetDBPath())
}

func TestLoadPartialFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "server.json", `{"port":"9090","seed":7,"db_path":"/tmp/p.db"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.GetPort())
	assert.Equal(t, uint64(7), cfg.GetSeed())
	assert.Equal(t, "/tmp/p.db", cfg.GetDBPath())
	assert.Equal(t, BackendNative, cfg.GetBackend(), "omitted fields keep defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("extension", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server.yaml", `{}`))
		assert.ErrorContains(t, err, ".json")
	})
	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := Load(writeConfig(t, "bad.json", `{"port":`))
		assert.Error(t, err)
	})
	t.Run("unknown backend", func(t *testing.T) {
		_, err := Load(writeConfig(t, "b.json", `{"backend":"tensorflow"}`))
		assert.ErrorContains(t, err, "unknown backend")
	})
	t.Run("too large", func(t *testing.T) {
		body := `{"chart_assets_host":"` + strings.Repeat("x", 1024*1024) + `"}`
		_, err := Load(writeConfig(t, "big.json", body))
		assert.ErrorContains(t, err, "too large")
	})
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PORT":           "3000",
		"FKP_BACKEND":    "onnx",
		"FKP_SEED":       "99",
		"FKP_COMPACT":    "true",
		"FKP_ONNX_MODEL": "/models/k.onnx",
	}))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.GetPort())
	assert.Equal(t, BackendONNX, cfg.GetBackend())
	assert.Equal(t, uint64(99), cfg.GetSeed())
	assert.True(t, cfg.GetCompact())
	assert.Equal(t, "/models/k.onnx", cfg.GetONNXModelPath())
	assert.Equal(t, filepath.Join("models", "keypoints_metadata.json"), cfg.GetONNXMetadataPath())

	assert.Error(t, Defaults().ApplyEnv(envMap(map[string]string{"FKP_SEED": "-1"})))
	assert.Error(t, Defaults().ApplyEnv(envMap(map[string]string{"FKP_COMPACT": "maybe"})))
}

func TestNilConfigGetters(t *testing.T) {
	t.Parallel()

	var cfg ServerConfig
	assert.Empty(t, cfg.GetPort())
	assert.Zero(t, cfg.GetSeed())
	assert.Error(t, cfg.Validate())
}

func TestPredictorOptions(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{
		"FKP_BACKEND":      "onnx",
		"FKP_SEED":         "9",
		"FKP_COMPACT":      "true",
		"FKP_ONNX_MODEL":   "m.onnx",
		"FKP_ONNX_LIBRARY": "/opt/libonnxruntime.so",
	})))

	o := cfg.PredictorOptions()
	assert.Equal(t, BackendONNX, o.Backend)
	assert.Equal(t, uint64(9), o.Seed)
	assert.True(t, o.Compact)
	assert.Equal(t, "m.onnx", o.ONNXModelPath)
	assert.Equal(t, filepath.Join("models", "keypoints_metadata.json"), o.ONNXMetadataPath)
	assert.Equal(t, "/opt/libonnxruntime.so", o.ONNXLibraryPath)
}
